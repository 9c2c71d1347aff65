package service

import (
	"time"
)

// MetricsRecorder receives business counters. *middleware.Metrics satisfies it.
type MetricsRecorder interface {
	RecordVisitTransition(event, outcome string)
	RecordLogin(outcome string)
}

type noopRecorder struct{}

func (noopRecorder) RecordVisitTransition(string, string) {}
func (noopRecorder) RecordLogin(string)                   {}

func recorderOrNoop(m MetricsRecorder) MetricsRecorder {
	if m == nil {
		return noopRecorder{}
	}
	return m
}

type clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }
