package observability

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

const latencyWindowSize = 500

// MetricsTracker keeps in-process request counters and a bounded latency
// window per path. A restart resets it; the snapshot endpoint is for quick
// operational checks, not long-term storage.
type MetricsTracker struct {
	mu              sync.Mutex
	requestTotal    int64
	pathCounts      map[string]int64
	statusCounts    map[string]int64
	errorCounts     map[string]int64
	latenciesByPath map[string][]int64
}

func NewMetricsTracker() *MetricsTracker {
	return &MetricsTracker{
		pathCounts:      make(map[string]int64),
		statusCounts:    make(map[string]int64),
		errorCounts:     make(map[string]int64),
		latenciesByPath: make(map[string][]int64),
	}
}

func (m *MetricsTracker) Record(path string, status int, durationMS int64, errorCode string) {
	if durationMS < 0 {
		durationMS = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.requestTotal++
	m.pathCounts[path]++
	m.statusCounts[statusLabel(status)]++
	if errorCode != "" {
		m.errorCounts[errorCode]++
	}

	window := append(m.latenciesByPath[path], durationMS)
	if len(window) > latencyWindowSize {
		window = window[len(window)-latencyWindowSize:]
	}
	m.latenciesByPath[path] = window
}

type LatencySummary struct {
	Count int   `json:"count"`
	P50MS int64 `json:"p50_ms"`
	P95MS int64 `json:"p95_ms"`
}

type MetricsSnapshot struct {
	GeneratedAt  time.Time                 `json:"generatedAt"`
	RequestTotal int64                     `json:"requestTotal"`
	PathCounts   map[string]int64          `json:"pathCounts"`
	StatusCounts map[string]int64          `json:"statusCounts"`
	ErrorCounts  map[string]int64          `json:"errorCounts"`
	Latency      map[string]LatencySummary `json:"latency"`
}

func (m *MetricsTracker) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	latency := make(map[string]LatencySummary, len(m.latenciesByPath))
	for path, window := range m.latenciesByPath {
		latency[path] = LatencySummary{
			Count: len(window),
			P50MS: percentile(window, 0.5),
			P95MS: percentile(window, 0.95),
		}
	}

	return MetricsSnapshot{
		GeneratedAt:  time.Now().UTC(),
		RequestTotal: m.requestTotal,
		PathCounts:   copyCounts(m.pathCounts),
		StatusCounts: copyCounts(m.statusCounts),
		ErrorCounts:  copyCounts(m.errorCounts),
		Latency:      latency,
	}
}

func percentile(values []int64, p float64) int64 {
	if len(values) == 0 {
		return 0
	}

	ranked := make([]int64, len(values))
	copy(ranked, values)
	sort.Slice(ranked, func(i, j int) bool { return ranked[i] < ranked[j] })

	idx := int(float64(len(ranked)-1)*p + 0.5)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(ranked) {
		idx = len(ranked) - 1
	}

	return ranked[idx]
}

func copyCounts(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}

func statusLabel(status int) string {
	return strconv.Itoa(status)
}
