package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncTaskCreated() {}
func (n *NoopRecorder) IncTaskUpdated() {}
func (n *NoopRecorder) IncTaskDeleted() {}
func (n *NoopRecorder) IncUserRegistered() {}
func (n *NoopRecorder) IncAuthFailure(reason string) {}
func (n *NoopRecorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
}
