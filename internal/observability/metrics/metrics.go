package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type requestKey struct {
	handler string
	method  string
	code    string
}

type turnKey struct {
	intent  string
	outcome string
}

type capKey struct {
	capability string
	success    string
}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type collector struct {
	mu           sync.Mutex
	requests     map[requestKey]uint64
	turns        map[turnKey]uint64
	capabilities map[capKey]uint64
	turnLatency  *histogram
	capLatency   map[string]*histogram
}

var defaultCollector = &collector{
	requests:     make(map[requestKey]uint64),
	turns:        make(map[turnKey]uint64),
	capabilities: make(map[capKey]uint64),
	turnLatency:  newHistogram(),
	capLatency:   make(map[string]*histogram),
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	c := defaultCollector
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests[requestKey{handler: handler, method: method, code: strconv.Itoa(status)}]++
}

// ObserveTurn records one processed conversation turn.
func ObserveTurn(intent, outcome string, duration time.Duration) {
	c := defaultCollector
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns[turnKey{intent: intent, outcome: outcome}]++
	c.turnLatency.observe(duration.Seconds())
}

// ObserveCapability records one capability invocation.
func ObserveCapability(capability string, success bool, duration time.Duration) {
	c := defaultCollector
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capabilities[capKey{capability: capability, success: strconv.FormatBool(success)}]++
	hist := c.capLatency[capability]
	if hist == nil {
		hist = newHistogram()
		c.capLatency[capability] = hist
	}
	hist.observe(duration.Seconds())
}

func newHistogram() *histogram {
	buckets := []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) observe(value float64) {
	h.count++
	h.sum += value
	for idx, bound := range h.buckets {
		if value <= bound {
			for i := idx; i < len(h.counts); i++ {
				h.counts[i]++
			}
			break
		}
	}
}

// Handler exposes the metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = fmt.Fprint(w, defaultCollector.render())
	})
}

func (c *collector) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	b.Grow(1024)

	b.WriteString("# HELP wealthpilot_http_requests_total Total number of HTTP requests processed.\n")
	b.WriteString("# TYPE wealthpilot_http_requests_total counter\n")
	for _, key := range sortedRequestKeys(c.requests) {
		fmt.Fprintf(&b, "wealthpilot_http_requests_total{handler=%q,method=%q,code=%q} %d\n",
			key.handler, key.method, key.code, c.requests[key])
	}

	b.WriteString("# HELP wealthpilot_turns_total Total number of conversation turns processed.\n")
	b.WriteString("# TYPE wealthpilot_turns_total counter\n")
	for _, key := range sortedTurnKeys(c.turns) {
		fmt.Fprintf(&b, "wealthpilot_turns_total{intent=%q,outcome=%q} %d\n",
			key.intent, key.outcome, c.turns[key])
	}

	b.WriteString("# HELP wealthpilot_capability_invocations_total Total number of capability invocations.\n")
	b.WriteString("# TYPE wealthpilot_capability_invocations_total counter\n")
	for _, key := range sortedCapKeys(c.capabilities) {
		fmt.Fprintf(&b, "wealthpilot_capability_invocations_total{capability=%q,success=%q} %d\n",
			key.capability, key.success, c.capabilities[key])
	}

	b.WriteString("# HELP wealthpilot_turn_duration_seconds Conversation turn duration in seconds.\n")
	b.WriteString("# TYPE wealthpilot_turn_duration_seconds histogram\n")
	renderHistogram(&b, "wealthpilot_turn_duration_seconds", "", c.turnLatency)

	b.WriteString("# HELP wealthpilot_capability_duration_seconds Capability invocation duration in seconds.\n")
	b.WriteString("# TYPE wealthpilot_capability_duration_seconds histogram\n")
	capNames := make([]string, 0, len(c.capLatency))
	for name := range c.capLatency {
		capNames = append(capNames, name)
	}
	sort.Strings(capNames)
	for _, name := range capNames {
		renderHistogram(&b, "wealthpilot_capability_duration_seconds",
			fmt.Sprintf("capability=%q", name), c.capLatency[name])
	}

	return b.String()
}

func renderHistogram(b *strings.Builder, name, labels string, h *histogram) {
	sep := ""
	if labels != "" {
		sep = ","
	}
	for idx, bound := range h.buckets {
		fmt.Fprintf(b, "%s_bucket{%s%sle=%q} %d\n", name, labels, sep, formatFloat(bound), h.counts[idx])
	}
	fmt.Fprintf(b, "%s_bucket{%s%sle=\"+Inf\"} %d\n", name, labels, sep, h.count)
	if labels == "" {
		fmt.Fprintf(b, "%s_sum %s\n", name, formatFloat(h.sum))
		fmt.Fprintf(b, "%s_count %d\n", name, h.count)
		return
	}
	fmt.Fprintf(b, "%s_sum{%s} %s\n", name, labels, formatFloat(h.sum))
	fmt.Fprintf(b, "%s_count{%s} %d\n", name, labels, h.count)
}

func sortedRequestKeys(m map[requestKey]uint64) []requestKey {
	keys := make([]requestKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].handler != keys[j].handler {
			return keys[i].handler < keys[j].handler
		}
		if keys[i].method != keys[j].method {
			return keys[i].method < keys[j].method
		}
		return keys[i].code < keys[j].code
	})
	return keys
}

func sortedTurnKeys(m map[turnKey]uint64) []turnKey {
	keys := make([]turnKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].intent != keys[j].intent {
			return keys[i].intent < keys[j].intent
		}
		return keys[i].outcome < keys[j].outcome
	})
	return keys
}

func sortedCapKeys(m map[capKey]uint64) []capKey {
	keys := make([]capKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].capability != keys[j].capability {
			return keys[i].capability < keys[j].capability
		}
		return keys[i].success < keys[j].success
	})
	return keys
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
