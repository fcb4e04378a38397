// Package metrics aggregates in-memory counters for HTTP traffic, lookup
// outcomes, decode calls, and photo uploads, exposing them in Prometheus text
// format.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// Recorder coordinates concurrent writers via a mutex. A process-wide default
// instance backs the package-level helpers.
type Recorder struct {
	mu              sync.RWMutex
	requestCount    map[requestLabel]uint64
	requestDuration map[requestLabel]time.Duration
	lookupOutcomes  map[string]uint64
	decodeAttempts  uint64
	decodeFailures  uint64
	uploadAttempts  uint64
	uploadFailures  uint64
	submissions     uint64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps.
func New() *Recorder {
	return &Recorder{
		requestCount:    make(map[requestLabel]uint64),
		requestDuration: make(map[requestLabel]time.Duration),
		lookupOutcomes:  make(map[string]uint64),
	}
}

// Default returns the singleton Recorder shared across the process.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest accumulates request count and cumulative duration by HTTP
// method, normalized path, and status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// ObserveLookup records a resolution outcome: "local", "external", or "miss".
func (r *Recorder) ObserveLookup(outcome string) {
	normalized := strings.ToLower(strings.TrimSpace(outcome))
	if normalized == "" {
		normalized = "unknown"
	}
	r.mu.Lock()
	r.lookupOutcomes[normalized]++
	r.mu.Unlock()
}

// ObserveDecodeAttempt records one external decode call.
func (r *Recorder) ObserveDecodeAttempt() {
	r.mu.Lock()
	r.decodeAttempts++
	r.mu.Unlock()
}

// ObserveDecodeFailure records a decode call that failed at the transport level.
func (r *Recorder) ObserveDecodeFailure() {
	r.mu.Lock()
	r.decodeFailures++
	r.mu.Unlock()
}

// ObserveUploadAttempt records one photo upload attempt.
func (r *Recorder) ObserveUploadAttempt() {
	r.mu.Lock()
	r.uploadAttempts++
	r.mu.Unlock()
}

// ObserveUploadFailure records a photo upload that was skipped after failing.
func (r *Recorder) ObserveUploadFailure() {
	r.mu.Lock()
	r.uploadFailures++
	r.mu.Unlock()
}

// ObserveSubmission records one persisted vehicle record.
func (r *Recorder) ObserveSubmission() {
	r.mu.Lock()
	r.submissions++
	r.mu.Unlock()
}

// Reset clears all counters. It is intended for test setups.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.lookupOutcomes = make(map[string]uint64)
	r.decodeAttempts = 0
	r.decodeFailures = 0
	r.uploadAttempts = 0
	r.uploadFailures = 0
	r.submissions = 0
}

// LookupCounts returns a copy of the lookup outcome counters for tests and
// reporting.
func (r *Recorder) LookupCounts() map[string]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]uint64, len(r.lookupOutcomes))
	for outcome, count := range r.lookupOutcomes {
		counts[outcome] = count
	}
	return counts
}

// DecodeCounts returns the decode attempt and failure counters.
func (r *Recorder) DecodeCounts() (attempts, failures uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.decodeAttempts, r.decodeFailures
}

// UploadCounts returns the upload attempt and failure counters.
func (r *Recorder) UploadCounts() (attempts, failures uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.uploadAttempts, r.uploadFailures
}

// Handler exposes the Recorder as an http.Handler that writes Prometheus text
// exposition data with the appropriate content type.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the metrics in Prometheus text format, sorting label sets for
// stable scrape output.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	outcomes := r.sortedLookupOutcomes()

	fmt.Fprintln(w, "# HELP cardex_http_requests_total Total number of HTTP requests processed by the API")
	fmt.Fprintln(w, "# TYPE cardex_http_requests_total counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "cardex_http_requests_total{method=%q,path=%q,status=%q} %d\n", label.method, label.path, label.status, r.requestCount[label])
	}

	fmt.Fprintln(w, "# HELP cardex_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE cardex_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "cardex_http_request_duration_seconds_sum{method=%q,path=%q,status=%q} %f\n", label.method, label.path, label.status, r.requestDuration[label].Seconds())
	}

	fmt.Fprintln(w, "# HELP cardex_http_request_duration_seconds_count Total number of observations for request durations")
	fmt.Fprintln(w, "# TYPE cardex_http_request_duration_seconds_count counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "cardex_http_request_duration_seconds_count{method=%q,path=%q,status=%q} %d\n", label.method, label.path, label.status, r.requestCount[label])
	}

	fmt.Fprintln(w, "# HELP cardex_lookups_total Vehicle lookups by outcome")
	fmt.Fprintln(w, "# TYPE cardex_lookups_total counter")
	for _, outcome := range outcomes {
		fmt.Fprintf(w, "cardex_lookups_total{outcome=%q} %d\n", outcome, r.lookupOutcomes[outcome])
	}

	fmt.Fprintln(w, "# HELP cardex_decode_requests_total External decode calls attempted")
	fmt.Fprintln(w, "# TYPE cardex_decode_requests_total counter")
	fmt.Fprintf(w, "cardex_decode_requests_total %d\n", r.decodeAttempts)

	fmt.Fprintln(w, "# HELP cardex_decode_failures_total External decode calls that failed at the transport level")
	fmt.Fprintln(w, "# TYPE cardex_decode_failures_total counter")
	fmt.Fprintf(w, "cardex_decode_failures_total %d\n", r.decodeFailures)

	fmt.Fprintln(w, "# HELP cardex_photo_uploads_total Photo upload attempts")
	fmt.Fprintln(w, "# TYPE cardex_photo_uploads_total counter")
	fmt.Fprintf(w, "cardex_photo_uploads_total %d\n", r.uploadAttempts)

	fmt.Fprintln(w, "# HELP cardex_photo_upload_failures_total Photo uploads skipped after failing")
	fmt.Fprintln(w, "# TYPE cardex_photo_upload_failures_total counter")
	fmt.Fprintf(w, "cardex_photo_upload_failures_total %d\n", r.uploadFailures)

	fmt.Fprintln(w, "# HELP cardex_submissions_total Vehicle records persisted via the submit endpoint")
	fmt.Fprintln(w, "# TYPE cardex_submissions_total counter")
	fmt.Fprintf(w, "cardex_submissions_total %d\n", r.submissions)
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func (r *Recorder) sortedLookupOutcomes() []string {
	outcomes := make([]string, 0, len(r.lookupOutcomes))
	for outcome := range r.lookupOutcomes {
		outcomes = append(outcomes, outcome)
	}
	sort.Strings(outcomes)
	return outcomes
}

func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if looksLikeIdentifier(part) {
			parts[i] = ":id"
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

func looksLikeIdentifier(segment string) bool {
	if len(segment) >= 16 {
		return true
	}
	digitCount := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	return digitCount >= 4
}

// ObserveRequest is a helper on the default recorder.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	defaultRecorder.ObserveRequest(method, path, status, duration)
}

// ObserveLookup records a lookup outcome on the default recorder.
func ObserveLookup(outcome string) {
	defaultRecorder.ObserveLookup(outcome)
}

// ObserveDecodeAttempt records a decode attempt on the default recorder.
func ObserveDecodeAttempt() {
	defaultRecorder.ObserveDecodeAttempt()
}

// ObserveDecodeFailure records a decode failure on the default recorder.
func ObserveDecodeFailure() {
	defaultRecorder.ObserveDecodeFailure()
}

// ObserveUploadAttempt records an upload attempt on the default recorder.
func ObserveUploadAttempt() {
	defaultRecorder.ObserveUploadAttempt()
}

// ObserveUploadFailure records an upload failure on the default recorder.
func ObserveUploadFailure() {
	defaultRecorder.ObserveUploadFailure()
}

// ObserveSubmission records a persisted submission on the default recorder.
func ObserveSubmission() {
	defaultRecorder.ObserveSubmission()
}

// Handler exposes the default recorder as an HTTP handler.
func Handler() http.Handler {
	return defaultRecorder.Handler()
}
