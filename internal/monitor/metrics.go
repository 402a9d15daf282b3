package monitor

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// SystemMetrics tracks overall process health: API traffic, websocket
// delivery and the terminal pool. Updated from hot paths with atomics only.
type SystemMetrics struct {
	// API counters
	apiRequests uint64
	apiErrors   uint64

	// WebSocket counters
	wsAdmitted    uint64
	wsRejected    uint64
	wsDelivered   uint64
	wsDropped     uint64
	wsSlowEvicted uint64

	// Latency histogram for the HTTP surface
	APILatency *LatencyHistogram
}

// NewSystemMetrics creates a new metrics instance.
func NewSystemMetrics() *SystemMetrics {
	return &SystemMetrics{
		APILatency: NewLatencyHistogram(1000),
	}
}

func (m *SystemMetrics) IncrementAPI()       { atomic.AddUint64(&m.apiRequests, 1) }
func (m *SystemMetrics) IncrementAPIErrors() { atomic.AddUint64(&m.apiErrors, 1) }

func (m *SystemMetrics) IncrementWSAdmitted()    { atomic.AddUint64(&m.wsAdmitted, 1) }
func (m *SystemMetrics) IncrementWSRejected()    { atomic.AddUint64(&m.wsRejected, 1) }
func (m *SystemMetrics) IncrementWSSlowEvicted() { atomic.AddUint64(&m.wsSlowEvicted, 1) }

// AddWSDelivered records n successful socket deliveries for one event.
func (m *SystemMetrics) AddWSDelivered(n int) {
	if n > 0 {
		atomic.AddUint64(&m.wsDelivered, uint64(n))
	}
}

// IncrementWSDropped records an event that reached no socket (transport not
// ready, or a targeted user with no connections).
func (m *SystemMetrics) IncrementWSDropped() { atomic.AddUint64(&m.wsDropped, 1) }

// Snapshot is a point-in-time view for the metrics endpoint.
type Snapshot struct {
	APIRequests   uint64       `json:"apiRequests"`
	APIErrors     uint64       `json:"apiErrors"`
	WSAdmitted    uint64       `json:"wsAdmitted"`
	WSRejected    uint64       `json:"wsRejected"`
	WSDelivered   uint64       `json:"wsDelivered"`
	WSDropped     uint64       `json:"wsDropped"`
	WSSlowEvicted uint64       `json:"wsSlowEvicted"`
	APILatency    LatencyStats `json:"apiLatencyMs"`
}

// Stats returns a consistent-enough snapshot of all counters.
func (m *SystemMetrics) Stats() Snapshot {
	return Snapshot{
		APIRequests:   atomic.LoadUint64(&m.apiRequests),
		APIErrors:     atomic.LoadUint64(&m.apiErrors),
		WSAdmitted:    atomic.LoadUint64(&m.wsAdmitted),
		WSRejected:    atomic.LoadUint64(&m.wsRejected),
		WSDelivered:   atomic.LoadUint64(&m.wsDelivered),
		WSDropped:     atomic.LoadUint64(&m.wsDropped),
		WSSlowEvicted: atomic.LoadUint64(&m.wsSlowEvicted),
		APILatency:    m.APILatency.Stats(),
	}
}

// LatencyHistogram tracks latency samples with a sliding window.
type LatencyHistogram struct {
	mu      sync.Mutex
	samples []float64
	maxSize int
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		// Shift window: remove oldest
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
}

// RecordDuration adds a sample from a time.Duration.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Microseconds()) / 1000.0)
}

// LatencyStats summarizes the current window.
type LatencyStats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// Stats computes summary statistics over the window.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	sum := 0.0
	for _, s := range sorted {
		sum += s
	}

	return LatencyStats{
		Count: n,
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   sum / float64(n),
		P50:   percentile(sorted, 0.50),
		P95:   percentile(sorted, 0.95),
		P99:   percentile(sorted, 0.99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
