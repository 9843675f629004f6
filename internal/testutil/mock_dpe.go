// Package testutil provides testing utilities for the DPE client.
package testutil

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// LinesPath is the path the mock serves the dataset lines on.
const LinesPath = "/data-fair/api/v1/datasets/dpe03existant/lines"

// MockDPEResponse overrides the response for one page.
type MockDPEResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockDPE is a configurable mock of a Data Fair "lines" endpoint.
//
// Records are registered per filter and served in pages of the requested
// size. Continuation links carry the offset of the next page, so page N of a
// filter is the one starting at (N-1)*size.
type MockDPE struct {
	server *httptest.Server
	mu     sync.RWMutex

	records   map[string][]string
	overrides map[int]MockDPEResponse
	headers   map[string]string
	nextOnEnd bool

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
	Queries           []url.Values
}

// NewMockDPE creates a new mock DPE server.
func NewMockDPE() *MockDPE {
	mock := &MockDPE{
		records:   make(map[string][]string),
		overrides: make(map[int]MockDPEResponse),
		headers:   make(map[string]string),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.Queries = append(mock.Queries, r.URL.Query())
		mock.mu.Unlock()

		if r.URL.Path != LinesPath {
			http.NotFound(w, r)
			return
		}
		mock.linesHandler(w, r)
	}))

	return mock
}

// URL returns the mock server base URL.
func (m *MockDPE) URL() string {
	return m.server.URL
}

// Endpoint returns the full lines endpoint URL.
func (m *MockDPE) Endpoint() string {
	return m.server.URL + LinesPath
}

// Close shuts down the mock server.
func (m *MockDPE) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockDPE) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestHeader = nil
	m.Queries = nil
}

// AddRecords registers raw JSON objects matching field = value.
func (m *MockDPE) AddRecords(field, value string, records ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	qs := field + ":" + value
	m.records[qs] = append(m.records[qs], records...)
}

// SetPageResponse replaces the response of the given 1-based page.
func (m *MockDPE) SetPageResponse(page int, resp MockDPEResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[page] = resp
}

// SetHeader adds a header to every lines response.
func (m *MockDPE) SetHeader(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headers[key] = value
}

// SetNextOnLastPage makes the last page still carry a continuation link,
// which then leads to an empty page.
func (m *MockDPE) SetNextOnLastPage(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextOnEnd = enabled
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockDPE) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetQueries returns the query parameters of every request, in order.
func (m *MockDPE) GetQueries() []url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]url.Values, len(m.Queries))
	copy(out, m.Queries)
	return out
}

// linesHandler serves one page of the matching records.
func (m *MockDPE) linesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	size, err := strconv.Atoi(q.Get("size"))
	if err != nil || size < 1 {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "invalid size"}`))
		return
	}
	offset := 0
	if after := q.Get("after"); after != "" {
		offset, err = strconv.Atoi(after)
		if err != nil || offset < 0 {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error": "invalid after"}`))
			return
		}
	}
	page := offset/size + 1

	m.mu.RLock()
	for k, v := range m.headers {
		w.Header().Set(k, v)
	}
	override, overridden := m.overrides[page]
	all := m.records[q.Get("qs")]
	nextOnEnd := m.nextOnEnd
	m.mu.RUnlock()

	if overridden {
		if override.Delay > 0 {
			select {
			case <-time.After(override.Delay):
			case <-r.Context().Done():
				return
			}
		}
		if override.StatusCode != 0 && override.StatusCode != http.StatusOK {
			for k, v := range override.Headers {
				w.Header().Set(k, v)
			}
			w.WriteHeader(override.StatusCode)
			if override.Body != "" {
				w.Write([]byte(override.Body))
			}
			return
		}
		if override.Body != "" {
			for k, v := range override.Headers {
				w.Header().Set(k, v)
			}
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(override.Body))
			return
		}
	}

	start := min(offset, len(all))
	end := min(offset+size, len(all))

	var buf bytes.Buffer
	buf.WriteString(`{"total":`)
	buf.WriteString(strconv.Itoa(len(all)))
	buf.WriteString(`,"results":[`)
	for i, rec := range all[start:end] {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(rec)
	}
	buf.WriteByte(']')
	if end < len(all) || (nextOnEnd && start < len(all)) {
		next := url.Values{
			"qs":     []string{q.Get("qs")},
			"size":   []string{strconv.Itoa(size)},
			"q_mode": []string{"simple"},
			"after":  []string{strconv.Itoa(end)},
		}
		if end == start {
			next.Set("after", strconv.Itoa(offset+size))
		}
		buf.WriteString(`,"next":`)
		buf.WriteString(strconv.Quote(m.server.URL + LinesPath + "?" + next.Encode()))
	}
	buf.WriteByte('}')

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockDPEResponse {
	return MockDPEResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Too many requests"}`,
		Headers: map[string]string{
			"X-RateLimit-Remaining": "0",
			"X-RateLimit-Reset":     "30",
		},
	}
}

// NewEndOfRangeResponse creates the 400 the API returns past its window.
func NewEndOfRangeResponse() MockDPEResponse {
	return MockDPEResponse{
		StatusCode: http.StatusBadRequest,
		Body:       `{"error": "size + skip cannot exceed 10000"}`,
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockDPEResponse {
	return MockDPEResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
	}
}
