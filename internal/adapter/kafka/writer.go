package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/weather-grid-sync/internal/domain"
	"github.com/couchcryptid/weather-grid-sync/internal/pipeline"
)

// Publisher produces request outcome and cycle report events to a Kafka topic.
// It implements runner.OutcomePublisher and pipeline.ReportPublisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the outcome topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Publisher{writer: w, logger: logger}
}

// PublishOutcome writes one request outcome keyed by the run ID.
func (p *Publisher) PublishOutcome(ctx context.Context, runID string, o domain.RequestOutcome) error {
	msg, err := serializeOutcome(runID, o)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

// PublishReport writes the end-of-cycle summary keyed by the run ID.
func (p *Publisher) PublishReport(ctx context.Context, r pipeline.Report) error {
	msg, err := serializeReport(r)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return err
	}
	p.logger.Debug("cycle report published", "run_id", r.RunID)
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// OutcomeEvent is the wire form of a request outcome.
type OutcomeEvent struct {
	RunID            string    `json:"run_id"`
	RequestID        int       `json:"request_id"`
	Mode             string    `json:"mode"`
	Zone             int       `json:"zone"`
	UTCOffsetSeconds int       `json:"utc_offset_seconds"`
	StartDate        time.Time `json:"start_date"`
	EndDate          time.Time `json:"end_date"`
	Parameters       []string  `json:"parameters"`
	Points           int       `json:"points"`
	NPointsRequested int       `json:"n_points_requested"`
	Status           string    `json:"status"`
	RequestSeconds   float64   `json:"request_seconds"`
	DateRequested    time.Time `json:"date_requested"`
	ErrorKind        string    `json:"error_kind,omitempty"`
	Error            string    `json:"error,omitempty"`
}

func newOutcomeEvent(runID string, o domain.RequestOutcome) OutcomeEvent {
	d := o.Descriptor
	return OutcomeEvent{
		RunID:            runID,
		RequestID:        d.RequestID,
		Mode:             string(d.Mode),
		Zone:             d.Zone,
		UTCOffsetSeconds: int(d.UTCOffset / time.Second),
		StartDate:        d.StartDateUTC,
		EndDate:          d.EndDateUTC,
		Parameters:       d.Parameters,
		Points:           len(d.Cells),
		NPointsRequested: d.NPointsRequested,
		Status:           string(o.Status),
		RequestSeconds:   o.ElapsedSeconds,
		DateRequested:    o.DateRequestedUTC,
		ErrorKind:        o.FailureKind(),
		Error:            o.ErrorText(),
	}
}

// serializeOutcome marshals an outcome into a Kafka message.
func serializeOutcome(runID string, o domain.RequestOutcome) (kafkago.Message, error) {
	data, err := json.Marshal(newOutcomeEvent(runID, o))
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize request outcome: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(runID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte("request_outcome")},
			{Key: "status", Value: []byte(o.Status)},
			{Key: "mode", Value: []byte(o.Descriptor.Mode)},
		},
	}, nil
}

// serializeReport marshals a cycle report into a Kafka message.
func serializeReport(r pipeline.Report) (kafkago.Message, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize cycle report: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(r.RunID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte("cycle_report")},
			{Key: "finished_at", Value: []byte(r.FinishedAt.Format(time.RFC3339))},
		},
	}, nil
}
