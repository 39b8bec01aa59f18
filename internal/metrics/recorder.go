package metrics

import "time"

// FetchRecorder observes individual fetch attempts.
type FetchRecorder interface {
	ObserveFetch(kind, phase string, ok bool, elapsed time.Duration)
}

type NoopFetchRecorder struct{}

func (NoopFetchRecorder) ObserveFetch(kind, phase string, ok bool, elapsed time.Duration) {}

// RunRecorder observes the lifecycle of a measurement run.
type RunRecorder interface {
	ObserveConfigFetch(ok bool)
	ObserveSignatureFailure()
	ObserveDroppedEndpoints(n int)
	ObserveUpload(ok bool)
	ObserveRun(ts time.Time, items int, err error)
}

type NoopRunRecorder struct{}

func (NoopRunRecorder) ObserveConfigFetch(ok bool)                    {}
func (NoopRunRecorder) ObserveSignatureFailure()                      {}
func (NoopRunRecorder) ObserveDroppedEndpoints(n int)                 {}
func (NoopRunRecorder) ObserveUpload(ok bool)                         {}
func (NoopRunRecorder) ObserveRun(ts time.Time, items int, err error) {}
