package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu               sync.Mutex
	requestCount     map[string]int64
	errorCount       map[string]int64
	correlationCount map[string]int64
	breachCount      map[string]int64
	outboundCount    map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:     make(map[string]int64),
		errorCount:       make(map[string]int64),
		correlationCount: make(map[string]int64),
		breachCount:      make(map[string]int64),
		outboundCount:    make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordCorrelation counts how an inbound email was threaded ("in_reply_to",
// "references", "subject_tag" or "new_ticket").
func (m *Metrics) RecordCorrelation(strategy string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.correlationCount[strategy]++
}

// RecordBreaches adds n breaches of the given kind.
func (m *Metrics) RecordBreaches(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breachCount[kind] += int64(n)
}

// RecordOutbound counts outbound mail results ("sent", "retried", "dropped").
func (m *Metrics) RecordOutbound(result string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outboundCount[result]++
}

// Snapshot copies every counter group.
func (m *Metrics) Snapshot() map[string]map[string]int64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]map[string]int64{
		"requests":     copyCounts(m.requestCount),
		"errors":       copyCounts(m.errorCount),
		"correlations": copyCounts(m.correlationCount),
		"sla_breaches": copyCounts(m.breachCount),
		"outbound":     copyCounts(m.outboundCount),
	}
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
