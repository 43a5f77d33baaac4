package domain

import (
	"errors"
	"math"
	"time"
)

// MaxParametersPerRequest is the weather API's hard limit.
const MaxParametersPerRequest = 10

// CellTarget is one point of a request and the date window it was requested for.
type CellTarget struct {
	WorldUtmID int
	CellID     int64
	Centroid   Centroid
	DateFirst  time.Time
	DateLast   time.Time
}

// RequestDescriptor is one planned weather API call. Points lists the cell
// centroids in the same order as Cells. Gaps is set only for fill requests and
// restricts which returned rows are kept.
type RequestDescriptor struct {
	RequestID        int
	Mode             Mode
	Zone             int
	UTCOffset        time.Duration
	Cells            []CellTarget
	StartDateUTC     time.Time
	EndDateUTC       time.Time
	Parameters       []string
	NPointsRequested int
	Gaps             []FillItem
}

// Points returns the centroids sent to the API.
func (d RequestDescriptor) Points() []Centroid {
	out := make([]Centroid, len(d.Cells))
	for i, c := range d.Cells {
		out[i] = c.Centroid
	}
	return out
}

// Status is the result of a submitted request.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFail    Status = "FAIL"
)

// Sentinel request durations stored for failures that have no meaningful timing.
const (
	SecondsParameterUnavailable = -404
	SecondsQuotaExhausted       = -429
	SecondsServerError          = -500
	SecondsInvalid              = -400
)

// RequestOutcome is the append-only log entry for one submitted descriptor.
type RequestOutcome struct {
	Descriptor       RequestDescriptor
	Status           Status
	ElapsedSeconds   float64
	DateRequestedUTC time.Time
	Err              error
}

// FailureKind names the error class of a failed outcome for reporting.
func (o RequestOutcome) FailureKind() string {
	if o.Status == StatusSuccess {
		return ""
	}
	switch {
	case errors.Is(o.Err, ErrRequestTimeout):
		return "RequestTimeout"
	case errors.Is(o.Err, ErrParameterUnavailable):
		return "ParameterUnavailable"
	case errors.Is(o.Err, ErrQuotaExhausted):
		return "QuotaExhausted"
	case errors.Is(o.Err, ErrCircuitOpen):
		return "CircuitOpen"
	case errors.Is(o.Err, ErrServerError):
		return "ServerError"
	case errors.Is(o.Err, ErrInvalidDescriptor):
		return "InvalidDescriptor"
	default:
		return "Other"
	}
}

// ErrorText returns the outcome error message, or "" on success.
func (o RequestOutcome) ErrorText() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// FailureSeconds maps a request error to the elapsed value recorded for it.
// Timeouts keep the measured duration.
func FailureSeconds(err error, measured time.Duration) float64 {
	switch {
	case errors.Is(err, ErrRequestTimeout):
		return RoundSeconds(measured)
	case errors.Is(err, ErrParameterUnavailable):
		return SecondsParameterUnavailable
	case errors.Is(err, ErrQuotaExhausted):
		return SecondsQuotaExhausted
	case errors.Is(err, ErrInvalidDescriptor):
		return SecondsInvalid
	default:
		return SecondsServerError
	}
}

// RoundSeconds converts d to seconds rounded to hundredths.
func RoundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}
