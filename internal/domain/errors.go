package domain

import "errors"

var (
	// ErrNoCoverage means a point lies outside every known world UTM polygon.
	ErrNoCoverage = errors.New("point is not covered by the weather grid")
	// ErrUnknownCell means a cell ID is not assigned in the given polygon.
	ErrUnknownCell = errors.New("unknown cell")
	// ErrUnknownZone means a world UTM ID is not loaded.
	ErrUnknownZone = errors.New("unknown world utm polygon")
	// ErrNoDemand means the add step found no consumer locations at all.
	ErrNoDemand = errors.New("no consumer locations require weather coverage")
	// ErrQuotaExhausted means no API requests remain for today.
	ErrQuotaExhausted = errors.New("daily request quota exhausted")
	// ErrRequestTimeout means the API did not answer within the transport timeout.
	ErrRequestTimeout = errors.New("weather request timed out")
	// ErrParameterUnavailable means a parameter has no data for the requested window.
	ErrParameterUnavailable = errors.New("parameter unavailable for requested window")
	// ErrServerError covers 5xx responses and an open circuit breaker.
	ErrServerError = errors.New("weather api server error")
	// ErrCircuitOpen means the client refused to send the request because its
	// circuit breaker is open. It is always wrapped together with ErrServerError.
	ErrCircuitOpen = errors.New("weather api circuit breaker open")
	// ErrMatching means a response coordinate did not map back to a requested cell.
	ErrMatching = errors.New("response coordinate does not match a requested cell")
	// ErrInvalidDescriptor means a descriptor broke a request constraint before submission.
	ErrInvalidDescriptor = errors.New("invalid request descriptor")
)
