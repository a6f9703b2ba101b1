package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	TasksCreated    uint64
	TasksUpdated    uint64
	TasksDeleted    uint64
	UsersRegistered uint64
	AuthFailures    map[string]uint64
	HTTPRequests    uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	tasksCreated    uint64
	tasksUpdated    uint64
	tasksDeleted    uint64
	usersRegistered uint64
	httpRequests    uint64

	mu           sync.Mutex
	authFailures map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{authFailures: make(map[string]uint64)}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	failures := make(map[string]uint64, len(m.authFailures))
	for reason, n := range m.authFailures {
		failures[reason] = n
	}
	m.mu.Unlock()

	return Snapshot{
		TasksCreated:    atomic.LoadUint64(&m.tasksCreated),
		TasksUpdated:    atomic.LoadUint64(&m.tasksUpdated),
		TasksDeleted:    atomic.LoadUint64(&m.tasksDeleted),
		UsersRegistered: atomic.LoadUint64(&m.usersRegistered),
		AuthFailures:    failures,
		HTTPRequests:    atomic.LoadUint64(&m.httpRequests),
	}
}

// IncTaskCreated increments task created counter.
func (m *InMemoryRecorder) IncTaskCreated() {
	atomic.AddUint64(&m.tasksCreated, 1)
}

// IncTaskUpdated increments task updated counter.
func (m *InMemoryRecorder) IncTaskUpdated() {
	atomic.AddUint64(&m.tasksUpdated, 1)
}

// IncTaskDeleted increments task deleted counter.
func (m *InMemoryRecorder) IncTaskDeleted() {
	atomic.AddUint64(&m.tasksDeleted, 1)
}

// IncUserRegistered increments user registered counter.
func (m *InMemoryRecorder) IncUserRegistered() {
	atomic.AddUint64(&m.usersRegistered, 1)
}

// IncAuthFailure counts an auth failure under reason.
func (m *InMemoryRecorder) IncAuthFailure(reason string) {
	m.mu.Lock()
	m.authFailures[reason]++
	m.mu.Unlock()
}

// ObserveHTTPRequest counts a served request.
func (m *InMemoryRecorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	atomic.AddUint64(&m.httpRequests, 1)
}
