package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/weather-grid-sync/internal/domain"
	"github.com/couchcryptid/weather-grid-sync/internal/observability"
	"github.com/couchcryptid/weather-grid-sync/internal/runner"
)

// Inventory finds what each workflow still needs.
type Inventory interface {
	Update(ctx context.Context) ([]domain.CoverageRequirement, error)
	Add(ctx context.Context) ([]domain.CoverageRequirement, error)
	Fill(ctx context.Context, types []domain.WeatherType) ([]domain.FillItem, error)
}

// Planner packs needs into request descriptors.
type Planner interface {
	PlanUpdate(reqs []domain.CoverageRequirement) []domain.RequestDescriptor
	PlanAdd(reqs []domain.CoverageRequirement) []domain.RequestDescriptor
	PlanFill(items []domain.FillItem) []domain.RequestDescriptor
}

// Runner submits descriptors within the daily quota.
type Runner interface {
	Remaining(ctx context.Context) (int, error)
	Run(ctx context.Context, runID string, descriptors []domain.RequestDescriptor) (runner.Result, error)
}

// ReportPublisher receives the summary of every cycle. Publishing is best-effort.
type ReportPublisher interface {
	PublishReport(ctx context.Context, r Report) error
}

// Cycle runs the update, add, and fill workflows in order.
type Cycle struct {
	inventory   Inventory
	planner     Planner
	runner      Runner
	types       []domain.WeatherType
	publisher   ReportPublisher
	clock       clockwork.Clock
	logger      *slog.Logger
	metrics     *observability.Metrics
	fillEnabled bool

	mu    sync.Mutex
	ready atomic.Bool
	last  atomic.Pointer[Report]
}

// New creates a Cycle. types are the weather types fill audits; publisher may
// be nil.
func New(inv Inventory, plan Planner, run Runner, types []domain.WeatherType, publisher ReportPublisher, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, fillEnabled bool) *Cycle {
	return &Cycle{
		inventory:   inv,
		planner:     plan,
		runner:      run,
		types:       types,
		publisher:   publisher,
		clock:       clock,
		logger:      logger,
		metrics:     metrics,
		fillEnabled: fillEnabled,
	}
}

// CheckReadiness returns nil once a cycle has completed, or an error
// describing why the service is not yet ready.
func (c *Cycle) CheckReadiness(_ context.Context) error {
	if !c.ready.Load() {
		return errors.New("no daily cycle has completed yet")
	}
	return nil
}

// LastReport returns the report of the most recent cycle, if any.
func (c *Cycle) LastReport() (Report, bool) {
	r := c.last.Load()
	if r == nil {
		return Report{}, false
	}
	return *r, true
}

type step struct {
	mode domain.Mode
	plan func(ctx context.Context) (needs int, ds []domain.RequestDescriptor, err error)
}

// RunDailyCycle executes update, then add, then fill when fill is set or
// enabled by configuration. Each step first checks the remaining quota and
// the cycle stops as soon as it is gone. The report is produced in every case.
// Only one cycle runs at a time.
func (c *Cycle) RunDailyCycle(ctx context.Context, fill bool) (Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics.CycleRunning.Set(1)
	defer c.metrics.CycleRunning.Set(0)

	report := newReport(uuid.NewString(), c.clock.Now().UTC())
	c.logger.Info("daily cycle started", "run_id", report.RunID, "fill", fill || c.fillEnabled)

	steps := []step{
		{mode: domain.ModeUpdate, plan: c.planUpdate},
		{mode: domain.ModeAdd, plan: c.planAdd},
	}
	if fill || c.fillEnabled {
		steps = append(steps, step{mode: domain.ModeFill, plan: c.planFill})
	}

	err := c.runSteps(ctx, &report, steps)
	if err != nil {
		report.fail(err)
		c.logger.Error("daily cycle stopped", "run_id", report.RunID, "error", err)
	}

	report.FinishedAt = c.clock.Now().UTC()
	c.metrics.CycleDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
	report.Log(c.logger)
	if c.publisher != nil {
		if perr := c.publisher.PublishReport(ctx, report); perr != nil {
			c.logger.Warn("publish cycle report failed", "run_id", report.RunID, "error", perr)
		}
	}
	c.last.Store(&report)
	if err == nil {
		c.ready.Store(true)
	}
	return report, err
}

func (c *Cycle) runSteps(ctx context.Context, report *Report, steps []step) error {
	for i, s := range steps {
		remaining, err := c.runner.Remaining(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", s.mode, err)
		}
		if remaining <= 0 {
			report.QuotaExhausted = true
			for _, rest := range steps[i:] {
				report.Steps = append(report.Steps, StepSummary{Mode: rest.mode, Skipped: "quota exhausted"})
			}
			c.logger.Warn("no requests left today, stopping", "next_step", s.mode)
			return nil
		}

		needs, ds, err := s.plan(ctx)
		if err != nil {
			report.Steps = append(report.Steps, StepSummary{Mode: s.mode, Skipped: err.Error()})
			return fmt.Errorf("%s: %w", s.mode, err)
		}
		c.metrics.CoverageItems.WithLabelValues(string(s.mode)).Set(float64(needs))
		c.logger.Info("step planned", "mode", s.mode, "needs", needs, "requests", len(ds), "remaining", remaining)

		res, err := c.runner.Run(ctx, report.RunID, ds)
		report.addOutcomes(res.Outcomes)
		report.Steps = append(report.Steps, StepSummary{
			Mode:         s.mode,
			Requirements: needs,
			Planned:      len(ds),
			Cut:          res.Cut,
			Submitted:    len(res.Outcomes),
			RowsWritten:  res.RowsWritten,
		})
		if res.QuotaExhausted || errors.Is(err, domain.ErrQuotaExhausted) {
			report.QuotaExhausted = true
			for _, rest := range steps[i+1:] {
				report.Steps = append(report.Steps, StepSummary{Mode: rest.mode, Skipped: "quota exhausted"})
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", s.mode, err)
		}
	}
	return nil
}

func (c *Cycle) planUpdate(ctx context.Context) (int, []domain.RequestDescriptor, error) {
	reqs, err := c.inventory.Update(ctx)
	if err != nil {
		return 0, nil, err
	}
	return len(reqs), c.planner.PlanUpdate(reqs), nil
}

func (c *Cycle) planAdd(ctx context.Context) (int, []domain.RequestDescriptor, error) {
	reqs, err := c.inventory.Add(ctx)
	if err != nil {
		return 0, nil, err
	}
	return len(reqs), c.planner.PlanAdd(reqs), nil
}

func (c *Cycle) planFill(ctx context.Context) (int, []domain.RequestDescriptor, error) {
	items, err := c.inventory.Fill(ctx, c.types)
	if err != nil {
		return 0, nil, err
	}
	return len(items), c.planner.PlanFill(items), nil
}
