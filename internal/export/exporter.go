package export

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"
	"github.com/jakopako/steprec/internal/types"
)

// Config configures exports.
type Config struct {
	Description string       `yaml:"description" env:"STEPREC_EXPORT_DESCRIPTION" env-default:"UI Automation Test"`
	Writer      WriterConfig `yaml:"writer"`
}

// Report summarizes an export.
type Report struct {
	Written []string
	Skipped []Skipped
}

// Exporter generates the artifacts for a list of steps and writes them.
type Exporter struct {
	translator *Translator
	writer     Writer
	logger     *slog.Logger
}

func NewExporter(t *Translator, w Writer) *Exporter {
	return &Exporter{
		translator: t,
		writer:     w,
		logger:     slog.Default().With(slog.String("component", "exporter")),
	}
}

// Export generates and writes all artifacts. See ExportReport.
func (e *Exporter) Export(ctx context.Context, steps []types.Step) error {
	_, err := e.ExportReport(ctx, steps)
	return err
}

// ExportReport generates and writes all artifacts. Each artifact is attempted
// even if another one failed; all failures are returned together. ErrNoSteps
// is returned if steps is empty.
func (e *Exporter) ExportReport(ctx context.Context, steps []types.Step) (Report, error) {
	var rep Report
	res, err := e.translator.Translate(steps)
	if len(steps) == 0 {
		e.logger.Warn(err.Error())
		return rep, err
	}
	rep.Skipped = res.Skipped

	var errs *multierror.Error
	if err != nil {
		errs = multierror.Append(errs, err)
	}
	for _, a := range res.Artifacts {
		if err := e.writer.Write(ctx, a); err != nil {
			e.logger.Error(fmt.Sprintf("failed to write %s: %v", a.Name, err))
			errs = multierror.Append(errs, err)
			continue
		}
		rep.Written = append(rep.Written, a.Name)
	}
	if len(rep.Skipped) > 0 {
		e.logger.Warn(fmt.Sprintf("%d step(s) were skipped because of invalid locators", len(rep.Skipped)))
	}
	e.logger.Info(fmt.Sprintf("exported %d step(s) into %d of %d artifact(s)", len(steps), len(rep.Written), len(artifacts)))
	return rep, errs.ErrorOrNil()
}
