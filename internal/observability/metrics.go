package observability

import (
	"sync"
	"sync/atomic"
)

// Degraded tracks how often components fell back to their degraded mode.
// These counters answer "is the system quietly limping" — a cache outage or a
// synthesis fallback does not fail a run, so it only shows up here and in logs.
type Degraded struct {
	cacheUnavailable     atomic.Int64
	retrievalUnavailable atomic.Int64
	providerFallbacks    atomic.Int64

	mu        sync.Mutex
	lastCause map[string]string
}

// NewDegraded creates a degraded-mode tracker.
func NewDegraded() *Degraded {
	return &Degraded{
		lastCause: make(map[string]string),
	}
}

// Global degraded-mode tracker.
var globalDegraded = NewDegraded()

// GlobalDegraded returns the global degraded-mode tracker.
func GlobalDegraded() *Degraded {
	return globalDegraded
}

// RecordCacheUnavailable records a cache call served by miss semantics due to an error.
func (d *Degraded) RecordCacheUnavailable(cause string) {
	d.cacheUnavailable.Add(1)
	d.setCause("cache", cause)
}

// RecordRetrievalUnavailable records a retrieval that returned empty due to an error.
func (d *Degraded) RecordRetrievalUnavailable(cause string) {
	d.retrievalUnavailable.Add(1)
	d.setCause("retrieval", cause)
}

// RecordProviderFallback records a synthesis call that skipped past a failing provider.
func (d *Degraded) RecordProviderFallback(provider, cause string) {
	d.providerFallbacks.Add(1)
	d.setCause("provider:"+provider, cause)
}

func (d *Degraded) setCause(component, cause string) {
	if cause == "" {
		return
	}
	d.mu.Lock()
	d.lastCause[component] = cause
	d.mu.Unlock()
}

// Snapshot returns a point-in-time view for the health endpoint.
func (d *Degraded) Snapshot() DegradedSnapshot {
	d.mu.Lock()
	causes := make(map[string]string, len(d.lastCause))
	for k, v := range d.lastCause {
		causes[k] = v
	}
	d.mu.Unlock()

	return DegradedSnapshot{
		CacheUnavailable:     d.cacheUnavailable.Load(),
		RetrievalUnavailable: d.retrievalUnavailable.Load(),
		ProviderFallbacks:    d.providerFallbacks.Load(),
		LastCause:            causes,
	}
}

// Reset resets all counters (useful for testing).
func (d *Degraded) Reset() {
	d.cacheUnavailable.Store(0)
	d.retrievalUnavailable.Store(0)
	d.providerFallbacks.Store(0)
	d.mu.Lock()
	d.lastCause = make(map[string]string)
	d.mu.Unlock()
}

// DegradedSnapshot is a point-in-time view of the degraded-mode counters.
type DegradedSnapshot struct {
	CacheUnavailable     int64             `json:"cache_unavailable"`
	RetrievalUnavailable int64             `json:"retrieval_unavailable"`
	ProviderFallbacks    int64             `json:"provider_fallbacks"`
	LastCause            map[string]string `json:"last_cause,omitempty"`
}
