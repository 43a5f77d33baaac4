// Package writer turns the rows of one successful request into stored daily
// records.
package writer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/weather-grid-sync/internal/domain"
	"github.com/couchcryptid/weather-grid-sync/internal/observability"
)

// Appender is the daily table.
type Appender interface {
	AppendDaily(ctx context.Context, records []domain.RetrievalRecord) error
}

// Writer filters rows to what was asked for and appends them in one batch.
type Writer struct {
	store   Appender
	typeIDs map[string]int
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a Writer. types must carry their stored IDs.
func New(store Appender, types []domain.WeatherType, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	ids := make(map[string]int, len(types))
	for _, wt := range types {
		ids[wt.Name] = wt.ID
	}
	return &Writer{store: store, typeIDs: ids, logger: logger, metrics: metrics}
}

// Write keeps the rows that fall inside their cell's requested window, or, for
// fill requests, that match a requested gap exactly. Kept rows are stamped
// with their weather type ID and appended together. It returns the number of
// records written.
func (w *Writer) Write(ctx context.Context, d domain.RequestDescriptor, rows []domain.DailyRow) (int, error) {
	keep := w.filter(d)

	records := make([]domain.RetrievalRecord, 0, len(rows))
	dropped := make(map[string]int)
	for _, row := range rows {
		if reason := keep(row); reason != "" {
			dropped[reason]++
			continue
		}
		typeID, ok := w.typeIDs[row.Parameter]
		if !ok {
			dropped["unknown_parameter"]++
			continue
		}
		records = append(records, domain.RetrievalRecord{
			WorldUtmID:    row.WorldUtmID,
			CellID:        row.CellID,
			WeatherTypeID: typeID,
			Date:          row.Date,
			Value:         row.Value,
			DateRequested: row.DateRequested,
		})
	}

	for reason, n := range dropped {
		w.metrics.RowsDropped.WithLabelValues(reason).Add(float64(n))
	}
	if len(records) == 0 {
		return 0, nil
	}

	if err := w.store.AppendDaily(ctx, records); err != nil {
		return 0, fmt.Errorf("append daily rows: %w", err)
	}
	w.metrics.RowsWritten.Add(float64(len(records)))
	w.logger.Debug("daily rows written", "request_id", d.RequestID, "rows", len(records), "dropped", len(rows)-len(records))
	return len(records), nil
}

// filter returns a predicate giving the drop reason for a row, or "" to keep it.
func (w *Writer) filter(d domain.RequestDescriptor) func(domain.DailyRow) string {
	if d.Mode == domain.ModeFill {
		wanted := make(map[domain.FillKey]bool, len(d.Gaps))
		for _, g := range d.Gaps {
			wanted[g.Key()] = true
		}
		return func(row domain.DailyRow) string {
			if !wanted[domain.FillKey{CellID: row.CellID, Date: row.Date, Parameter: row.Parameter}] {
				return "not_requested"
			}
			return ""
		}
	}

	windows := make(map[int64]domain.CellTarget, len(d.Cells))
	for _, c := range d.Cells {
		windows[c.CellID] = c
	}
	return func(row domain.DailyRow) string {
		c, ok := windows[row.CellID]
		if !ok || row.Date.Before(c.DateFirst) || row.Date.After(c.DateLast) {
			return "outside_window"
		}
		return ""
	}
}
