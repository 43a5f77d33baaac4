package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-grid-sync/internal/domain"
	"github.com/couchcryptid/weather-grid-sync/internal/pipeline"
)

func TestSerializeOutcome(t *testing.T) {
	requested := time.Date(2024, 4, 26, 13, 0, 5, 0, time.UTC)
	o := domain.RequestOutcome{
		Descriptor: domain.RequestDescriptor{
			RequestID:        3,
			Mode:             domain.ModeAdd,
			Zone:             14,
			UTCOffset:        -7 * time.Hour,
			StartDateUTC:     time.Date(2024, 1, 1, 6, 59, 59, 0, time.UTC),
			EndDateUTC:       time.Date(2025, 1, 1, 6, 59, 59, 0, time.UTC),
			Parameters:       []string{"t_min_2m_24h:C"},
			Cells:            make([]domain.CellTarget, 4),
			NPointsRequested: 1464,
		},
		Status:           domain.StatusFail,
		ElapsedSeconds:   domain.SecondsParameterUnavailable,
		DateRequestedUTC: requested,
		Err:              domain.ErrParameterUnavailable,
	}

	msg, err := serializeOutcome("run-7", o)
	require.NoError(t, err)

	assert.Equal(t, []byte("run-7"), msg.Key)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "request_outcome", string(msg.Headers[0].Value))
	assert.Equal(t, "status", msg.Headers[1].Key)
	assert.Equal(t, []byte("FAIL"), msg.Headers[1].Value)
	assert.Equal(t, "mode", msg.Headers[2].Key)
	assert.Equal(t, []byte("add"), msg.Headers[2].Value)

	var got OutcomeEvent
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "run-7", got.RunID)
	assert.Equal(t, -25200, got.UTCOffsetSeconds)
	assert.Equal(t, 4, got.Points)
	assert.Equal(t, float64(-404), got.RequestSeconds)
	assert.Equal(t, "ParameterUnavailable", got.ErrorKind)
	assert.Equal(t, domain.ErrParameterUnavailable.Error(), got.Error)
	assert.True(t, requested.Equal(got.DateRequested))
}

func TestSerializeOutcome_SuccessOmitsError(t *testing.T) {
	o := domain.RequestOutcome{
		Descriptor: domain.RequestDescriptor{RequestID: 1, Mode: domain.ModeUpdate},
		Status:     domain.StatusSuccess,
	}
	msg, err := serializeOutcome("run-1", o)
	require.NoError(t, err)
	assert.NotContains(t, string(msg.Value), `"error"`)
	assert.NotContains(t, string(msg.Value), `"error_kind"`)
}

func TestSerializeReport(t *testing.T) {
	finished := time.Date(2024, 4, 26, 13, 42, 0, 0, time.UTC)
	r := pipeline.Report{
		RunID:          "run-1",
		FinishedAt:     finished,
		Attempted:      2,
		Succeeded:      1,
		Failed:         1,
		FailuresByKind: map[string]int{"ServerError": 1},
		Outcomes:       []domain.RequestOutcome{{Status: domain.StatusSuccess}},
	}

	msg, err := serializeReport(r)
	require.NoError(t, err)
	assert.Equal(t, []byte("run-1"), msg.Key)
	assert.Equal(t, []byte(finished.Format(time.RFC3339)), msg.Headers[1].Value)
	assert.Contains(t, string(msg.Value), `"failures_by_kind":{"ServerError":1}`)
	assert.NotContains(t, string(msg.Value), "Outcomes")
}
