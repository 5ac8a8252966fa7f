package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/jakopako/steprec/internal/config"
	"github.com/jakopako/steprec/internal/session"
	"github.com/jakopako/steprec/internal/store"
	"github.com/jakopako/steprec/internal/types"
	"github.com/jakopako/steprec/internal/utils"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

type StepsCmd struct {
	List   StepsListCmd   `cmd:"" help:"List the steps of a recording."`
	Delete StepsDeleteCmd `cmd:"" help:"Delete a step."`
	Move   StepsMoveCmd   `cmd:"" help:"Move a step to another position."`
	Edit   StepsEditCmd   `cmd:"" help:"Change the locator, action, data or frame of a step."`
	Insert StepsInsertCmd `cmd:"" help:"Insert a new step."`
}

type StepsListCmd struct {
	SnapshotFlags `embed:""`
	YAML          bool `long:"yaml" help:"Print the whole recording as yaml instead of a table."`
}

func (l *StepsListCmd) Run(cfg *config.Config) error {
	snap, err := loadSnapshot(context.Background(), cfg, l.Key)
	if err != nil {
		slog.Error(err.Error())
		return err
	}
	if l.YAML {
		b, err := yaml.Marshal(snap)
		if err != nil {
			slog.Error(fmt.Sprintf("error while marshalling. %v", err))
			return err
		}
		fmt.Print(string(b))
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Action", "Locator", "Data", "Frame", "Element"})
	for _, st := range snap.Steps {
		table.Append([]string{strconv.Itoa(st.ID), st.Action.String(), st.Locator, utils.ShortenString(st.Data, 40), st.Frame(), st.ElementTag})
	}
	table.SetFooter([]string{"", "", "", "", snap.State.String(), fmt.Sprintf("%d step(s)", len(snap.Steps))})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.Render()
	return nil
}

type StepsDeleteCmd struct {
	SnapshotFlags `embed:""`
	ID            int `long:"id" required:"" help:"The id of the step."`
}

func (d *StepsDeleteCmd) Run(cfg *config.Config) error {
	return editRecording(cfg, d.Key, func(s *session.Session) error {
		return s.Delete(d.ID)
	})
}

type StepsMoveCmd struct {
	SnapshotFlags `embed:""`
	ID            int `long:"id" required:"" help:"The id of the step."`
	To            int `long:"to" required:"" help:"The new 1-based position of the step."`
}

func (m *StepsMoveCmd) Run(cfg *config.Config) error {
	return editRecording(cfg, m.Key, func(s *session.Session) error {
		return s.Move(m.ID, m.To)
	})
}

type StepsEditCmd struct {
	SnapshotFlags `embed:""`
	ID            int     `long:"id" required:"" help:"The id of the step."`
	Locator       *string `long:"locator" help:"The new locator."`
	Action        *string `long:"action" help:"The new action."`
	Data          *string `long:"data" help:"The new data."`
	Frame         *string `long:"frame" help:"The new frame id."`
}

func (e *StepsEditCmd) Run(cfg *config.Config) error {
	return editRecording(cfg, e.Key, func(s *session.Session) error {
		return s.Edit(e.ID, func(st *types.Step) {
			if e.Locator != nil {
				st.Locator = *e.Locator
			}
			if e.Action != nil {
				st.Action = types.Action(*e.Action)
			}
			if e.Data != nil {
				st.Data = *e.Data
			}
			if e.Frame != nil {
				st.FrameID = *e.Frame
			}
		})
	})
}

type StepsInsertCmd struct {
	SnapshotFlags `embed:""`
	At            int    `long:"at" required:"" help:"The 1-based position of the new step."`
	Action        string `long:"action" required:"" help:"The action of the new step."`
	Locator       string `long:"locator" required:"" help:"The locator of the new step."`
	Data          string `long:"data" help:"The data of the new step."`
	Frame         string `long:"frame" default:"main" help:"The frame id of the new step."`
}

func (i *StepsInsertCmd) Run(cfg *config.Config) error {
	action := types.Action(i.Action)
	if !action.Known() {
		slog.Warn(fmt.Sprintf("action %s is unknown, the export will contain a placeholder for it", action))
	}
	return editRecording(cfg, i.Key, func(s *session.Session) error {
		return s.Insert(i.At, types.Step{Locator: i.Locator, Action: action, Data: i.Data, FrameID: i.Frame})
	})
}

// editRecording applies fn to the recording stored under key and saves it back.
func editRecording(cfg *config.Config, key string, fn func(*session.Session) error) error {
	ctx := context.Background()
	st, err := store.NewStore(ctx, &cfg.Store)
	if err != nil {
		slog.Error(err.Error())
		return err
	}
	defer st.Close()

	p := session.NewPersister(st)
	snap, err := p.LoadSnapshot(ctx, key)
	if err != nil {
		slog.Error(fmt.Sprintf("error loading recording %s: %v", key, err))
		return err
	}
	s := session.Restore(snap)
	if err := fn(s); err != nil {
		slog.Error(err.Error())
		return err
	}
	if err := p.Save(ctx, key, s); err != nil {
		slog.Error(err.Error())
		return err
	}
	slog.Info(fmt.Sprintf("recording %s now has %d step(s)", key, s.StepCount()))
	return nil
}
