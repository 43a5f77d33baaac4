package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/couchcryptid/weather-grid-sync/internal/domain"
)

// StepSummary is what one workflow step did.
type StepSummary struct {
	Mode         domain.Mode `json:"mode"`
	Requirements int         `json:"requirements"`
	Planned      int         `json:"planned"`
	Cut          int         `json:"cut"`
	Submitted    int         `json:"submitted"`
	RowsWritten  int         `json:"rows_written"`
	Skipped      string      `json:"skipped,omitempty"`
}

// FailedRequest describes a failure that needs a human to look at it.
type FailedRequest struct {
	RequestID  int         `json:"request_id"`
	Mode       domain.Mode `json:"mode"`
	Zone       int         `json:"zone"`
	StartDate  time.Time   `json:"start_date"`
	EndDate    time.Time   `json:"end_date"`
	Points     int         `json:"points"`
	Parameters []string    `json:"parameters"`
	Error      string      `json:"error"`
}

// Report summarizes one daily cycle. It is produced even when the cycle
// stops early.
type Report struct {
	RunID          string          `json:"run_id"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
	Steps          []StepSummary   `json:"steps"`
	Attempted      int             `json:"attempted"`
	Succeeded      int             `json:"succeeded"`
	Failed         int             `json:"failed"`
	FailuresByKind map[string]int  `json:"failures_by_kind"`
	Unhandled      []FailedRequest `json:"unhandled"`
	QuotaExhausted bool            `json:"quota_exhausted"`
	Error          string          `json:"error,omitempty"`

	Outcomes []domain.RequestOutcome `json:"-"`
}

// unhandledKinds are failures that are neither transient nor expected.
var unhandledKinds = map[string]bool{
	"ParameterUnavailable": true,
	"ServerError":          true,
}

func newReport(runID string, started time.Time) Report {
	return Report{RunID: runID, StartedAt: started, FailuresByKind: make(map[string]int)}
}

func (r *Report) addOutcomes(outcomes []domain.RequestOutcome) {
	for _, o := range outcomes {
		r.Outcomes = append(r.Outcomes, o)
		r.Attempted++
		if o.Status == domain.StatusSuccess {
			r.Succeeded++
			continue
		}
		r.Failed++
		kind := o.FailureKind()
		r.FailuresByKind[kind]++
		if unhandledKinds[kind] {
			d := o.Descriptor
			r.Unhandled = append(r.Unhandled, FailedRequest{
				RequestID:  d.RequestID,
				Mode:       d.Mode,
				Zone:       d.Zone,
				StartDate:  d.StartDateUTC,
				EndDate:    d.EndDateUTC,
				Points:     len(d.Cells),
				Parameters: d.Parameters,
				Error:      o.ErrorText(),
			})
		}
	}
}

func (r *Report) fail(err error) {
	r.Error = err.Error()
	if errors.Is(err, domain.ErrQuotaExhausted) {
		r.QuotaExhausted = true
	}
}

// RowsWritten totals rows across steps.
func (r Report) RowsWritten() int {
	n := 0
	for _, s := range r.Steps {
		n += s.RowsWritten
	}
	return n
}

func percent(n, total int) int {
	if total == 0 {
		return 0
	}
	return int(float64(n)*100/float64(total) + 0.5)
}

// Log writes the summary the way operators read it after each run.
func (r Report) Log(logger *slog.Logger) {
	logger.Info("cycle summary",
		"run_id", r.RunID,
		"attempted", humanize.Comma(int64(r.Attempted)),
		"succeeded", fmt.Sprintf("%s/%s (%d%%)", humanize.Comma(int64(r.Succeeded)), humanize.Comma(int64(r.Attempted)), percent(r.Succeeded, r.Attempted)),
		"failed", fmt.Sprintf("%s/%s (%d%%)", humanize.Comma(int64(r.Failed)), humanize.Comma(int64(r.Attempted)), percent(r.Failed, r.Attempted)),
		"rows_written", humanize.Comma(int64(r.RowsWritten())),
		"quota_exhausted", r.QuotaExhausted,
		"took", r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String(),
	)
	for _, s := range r.Steps {
		if s.Skipped != "" {
			logger.Info("step skipped", "mode", s.Mode, "reason", s.Skipped)
			continue
		}
		logger.Info("step summary",
			"mode", s.Mode,
			"requirements", humanize.Comma(int64(s.Requirements)),
			"planned", s.Planned,
			"cut", s.Cut,
			"submitted", s.Submitted,
			"rows_written", humanize.Comma(int64(s.RowsWritten)),
		)
	}
	for kind, n := range r.FailuresByKind {
		logger.Warn("requests failed", "kind", kind, "count", n)
	}
	for _, f := range r.Unhandled {
		logger.Warn("failed request needs attention",
			"request_id", f.RequestID,
			"mode", f.Mode,
			"zone", f.Zone,
			"start", f.StartDate.Format(time.RFC3339),
			"end", f.EndDate.Format(time.RFC3339),
			"points", f.Points,
			"parameters", strings.Join(f.Parameters, ","),
			"error", f.Error,
		)
	}
}
