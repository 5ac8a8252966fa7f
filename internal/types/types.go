// Package types defines shared types used across the application.
package types

import (
	"slices"
	"time"
)

// MainFrame is the frame id of the top level document.
const MainFrame = "main"

// Action is the kind of interaction a Step represents. The set of known
// actions is closed (see KnownActions) but unknown names are carried through
// unchanged so that consumers can fall back to a generic handling.
type Action string

const (
	ActionClick        Action = "click"
	ActionSendKeys     Action = "sendKeys"
	ActionClear        Action = "clear"
	ActionHover        Action = "hover"
	ActionDoubleClick  Action = "doubleClick"
	ActionSave         Action = "save"
	ActionVerify       Action = "verify"
	ActionTab          Action = "tab"
	ActionPressEnter   Action = "pressEnter"
	ActionScrollToView Action = "scrollToView"
)

// KnownActions lists every action the recorder itself can emit.
var KnownActions = []Action{
	ActionClick,
	ActionSendKeys,
	ActionClear,
	ActionHover,
	ActionDoubleClick,
	ActionSave,
	ActionVerify,
	ActionTab,
	ActionPressEnter,
	ActionScrollToView,
}

// Known reports whether a is part of the closed action set.
func (a Action) Known() bool {
	return slices.Contains(KnownActions, a)
}

func (a Action) String() string {
	return string(a)
}

// Step represents one recorded user interaction.
type Step struct {
	ID         int       `json:"id" yaml:"id"`
	Locator    string    `json:"locator" yaml:"locator"`
	Action     Action    `json:"action" yaml:"action"`
	Data       string    `json:"data" yaml:"data"`
	ElementTag string    `json:"elementTag" yaml:"element_tag"`
	FrameID    string    `json:"frameId" yaml:"frame_id"`
	Timestamp  time.Time `json:"timestamp" yaml:"timestamp"`
}

// Frame returns the frame id of the step, defaulting to MainFrame.
func (s Step) Frame() string {
	if s.FrameID == "" {
		return MainFrame
	}
	return s.FrameID
}
