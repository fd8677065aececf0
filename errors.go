package main

import "errors"

var (
	// Malformed date or JSON. Recovered locally as absence of data.
	ErrParse = errors.New("parse error")

	// Upstream unreachable or answered with an error status. Retried, then degraded.
	ErrNetwork = errors.New("network error")

	// The request was superseded by a newer one for the same session.
	ErrCanceled = errors.New("request superseded")

	// Remote vigency windows could not be loaded. Recovered with defaults.
	ErrConfigurationUnavailable = errors.New("vigency configuration unavailable")
)
