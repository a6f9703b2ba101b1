// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Auth failure reasons reported to IncAuthFailure.
const (
	ReasonUnauthenticated    = "unauthenticated"
	ReasonInvalidToken       = "invalid_token"
	ReasonUnknownUser        = "unknown_user"
	ReasonInvalidCredentials = "invalid_credentials"
)

// Recorder captures metric events for the application.
type Recorder interface {
	// Task metrics
	IncTaskCreated()
	IncTaskUpdated()
	IncTaskDeleted()

	// Account metrics
	IncUserRegistered()
	IncAuthFailure(reason string)

	// HTTP metrics. route is the matched route pattern, not the raw path.
	ObserveHTTPRequest(method, route string, status int, duration time.Duration)
}
