//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-grid-sync/internal/adapter/kafka"
	"github.com/couchcryptid/weather-grid-sync/internal/domain"
	"github.com/couchcryptid/weather-grid-sync/internal/pipeline"
)

const testOutcomeTopic = "test-request-outcomes"

// TestPublisher verifies that outcome and report events reach the topic with
// the run ID as key and an event_type header.
func TestPublisher(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testOutcomeTopic)

	pub := kafka.NewPublisher([]string{broker}, testOutcomeTopic, slog.New(slog.DiscardHandler))
	defer pub.Close()

	outcome := domain.RequestOutcome{
		Descriptor: domain.RequestDescriptor{
			RequestID:        1,
			Mode:             domain.ModeUpdate,
			Zone:             13,
			UTCOffset:        -7 * time.Hour,
			StartDateUTC:     time.Date(2024, 4, 26, 6, 59, 59, 0, time.UTC),
			EndDateUTC:       time.Date(2024, 5, 3, 6, 59, 59, 0, time.UTC),
			Parameters:       []string{"t_min_2m_24h:C"},
			Cells:            make([]domain.CellTarget, 2),
			NPointsRequested: 16,
		},
		Status:           domain.StatusSuccess,
		ElapsedSeconds:   1.5,
		DateRequestedUTC: time.Date(2024, 4, 26, 13, 0, 2, 0, time.UTC),
	}
	require.NoError(t, pub.PublishOutcome(ctx, "run-42", outcome))
	require.NoError(t, pub.PublishReport(ctx, pipeline.Report{
		RunID:      "run-42",
		StartedAt:  time.Date(2024, 4, 26, 13, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2024, 4, 26, 13, 0, 5, 0, time.UTC),
		Attempted:  1,
		Succeeded:  1,
	}))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testOutcomeTopic,
		Partition:   0,
		StartOffset: kafkago.FirstOffset,
		MaxWait:     500 * time.Millisecond,
	})
	defer consumer.Close()

	readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
	defer readCancel()

	first, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err)
	assert.Equal(t, "run-42", string(first.Key))
	assert.Equal(t, "request_outcome", header(first, "event_type"))
	assert.Equal(t, "SUCCESS", header(first, "status"))

	var event kafka.OutcomeEvent
	require.NoError(t, json.Unmarshal(first.Value, &event))
	assert.Equal(t, 13, event.Zone)
	assert.Equal(t, 2, event.Points)
	assert.InDelta(t, 1.5, event.RequestSeconds, 1e-9)

	second, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err)
	assert.Equal(t, "cycle_report", header(second, "event_type"))

	var report pipeline.Report
	require.NoError(t, json.Unmarshal(second.Value, &report))
	assert.Equal(t, "run-42", report.RunID)
	assert.Equal(t, 1, report.Succeeded)
}

func header(msg kafkago.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
