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

// latencyBuckets 是请求耗时直方图的边界，单位为秒。
var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

type histogram struct {
	counts []uint64
	sum    float64
	total  uint64
}

func (h *histogram) observe(seconds float64) {
	if h.counts == nil {
		h.counts = make([]uint64, len(latencyBuckets))
	}
	for i, bound := range latencyBuckets {
		if seconds <= bound {
			h.counts[i]++
		}
	}
	h.sum += seconds
	h.total++
}

type requestKey struct {
	handler string
	method  string
	status  int
}

// Collector 聚合 HTTP 请求计数与耗时，并按 Prometheus 文本格式导出。
type Collector struct {
	mu       sync.Mutex
	requests map[requestKey]uint64
	errors   map[requestKey]uint64
	latency  map[string]*histogram
}

// NewCollector 构造一个空的指标收集器。
func NewCollector() *Collector {
	return &Collector{
		requests: make(map[requestKey]uint64),
		errors:   make(map[requestKey]uint64),
		latency:  make(map[string]*histogram),
	}
}

var defaultCollector = NewCollector()

// Default 返回进程级的默认收集器。
func Default() *Collector { return defaultCollector }

// ObserveHTTPRequest 记录一次请求的状态码与耗时。
func (c *Collector) ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	key := requestKey{handler: handler, method: method, status: status}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests[key]++
	if status >= http.StatusInternalServerError {
		c.errors[key]++
	}
	hist, ok := c.latency[handler]
	if !ok {
		hist = &histogram{}
		c.latency[handler] = hist
	}
	hist.observe(duration.Seconds())
}

// Render 导出当前指标快照。
func (c *Collector) Render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	b.WriteString("# HELP voicemcp_http_requests_total HTTP 请求总数。\n")
	b.WriteString("# TYPE voicemcp_http_requests_total counter\n")
	writeCounter(&b, "voicemcp_http_requests_total", c.requests)
	b.WriteString("# HELP voicemcp_http_request_errors_total 返回 5xx 的请求总数。\n")
	b.WriteString("# TYPE voicemcp_http_request_errors_total counter\n")
	writeCounter(&b, "voicemcp_http_request_errors_total", c.errors)
	b.WriteString("# HELP voicemcp_http_request_duration_seconds HTTP 请求耗时分布。\n")
	b.WriteString("# TYPE voicemcp_http_request_duration_seconds histogram\n")

	handlers := make([]string, 0, len(c.latency))
	for handler := range c.latency {
		handlers = append(handlers, handler)
	}
	sort.Strings(handlers)
	for _, handler := range handlers {
		hist := c.latency[handler]
		cumulative := uint64(0)
		for i, bound := range latencyBuckets {
			cumulative = hist.counts[i]
			fmt.Fprintf(&b, "voicemcp_http_request_duration_seconds_bucket{handler=%q,le=%q} %d\n",
				handler, strconv.FormatFloat(bound, 'g', -1, 64), cumulative)
		}
		fmt.Fprintf(&b, "voicemcp_http_request_duration_seconds_bucket{handler=%q,le=\"+Inf\"} %d\n", handler, hist.total)
		fmt.Fprintf(&b, "voicemcp_http_request_duration_seconds_sum{handler=%q} %g\n", handler, hist.sum)
		fmt.Fprintf(&b, "voicemcp_http_request_duration_seconds_count{handler=%q} %d\n", handler, hist.total)
	}
	return b.String()
}

func writeCounter(b *strings.Builder, name string, values map[requestKey]uint64) {
	keys := make([]requestKey, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].handler != keys[j].handler {
			return keys[i].handler < keys[j].handler
		}
		if keys[i].method != keys[j].method {
			return keys[i].method < keys[j].method
		}
		return keys[i].status < keys[j].status
	})
	for _, key := range keys {
		fmt.Fprintf(b, "%s{handler=%q,method=%q,status=\"%d\"} %d\n",
			name, key.handler, key.method, key.status, values[key])
	}
}

// Handler 返回 /metrics 的导出端点。
func (c *Collector) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(c.Render()))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware 包装处理器，自动上报每次请求的指标。
func (c *Collector) Middleware(handler string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		c.ObserveHTTPRequest(handler, r.Method, rec.status, time.Since(start))
	})
}
