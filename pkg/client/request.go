package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/dpe-analyse/dpe-client/pkg/record"
)

// Filter is the query sent with the first page: one equality predicate and a
// page size.
type Filter struct {
	// Field is the dataset column to filter on (e.g. "zone_climatique").
	Field string

	// Value is the value the field must equal (e.g. "H1a").
	Value string

	// PageSize is the number of records requested per page.
	PageSize int
}

// Query returns the Data Fair simple-query predicate "field:value".
func (f Filter) Query() string {
	return f.Field + ":" + f.Value
}

// Params returns the query parameters of the initial request.
func (f Filter) Params() url.Values {
	return url.Values{
		"q_mode": []string{"simple"},
		"size":   []string{strconv.Itoa(f.PageSize)},
		"qs":     []string{f.Query()},
	}
}

// Request targets one page. It is either the initial request, which carries
// the filter, or a continuation request, which carries only the "next" URL
// returned by the previous page. The continuation URL already embeds the
// filter and is used verbatim.
type Request struct {
	target string
	filter *Filter
}

// InitialRequest builds the request for the first page.
func InitialRequest(endpoint string, filter Filter) Request {
	f := filter
	return Request{target: endpoint, filter: &f}
}

// ContinuationRequest builds the request for a page after the first.
func ContinuationRequest(next string) Request {
	return Request{target: next}
}

// IsContinuation reports whether r follows a continuation reference.
func (r Request) IsContinuation() bool {
	return r.filter == nil
}

// Filter returns the filter of an initial request.
func (r Request) Filter() (Filter, bool) {
	if r.filter == nil {
		return Filter{}, false
	}
	return *r.filter, true
}

// URL returns the full request URL.
func (r Request) URL() (string, error) {
	if strings.TrimSpace(r.target) == "" {
		return "", fmt.Errorf("empty request target")
	}
	if r.filter == nil {
		return r.target, nil
	}

	u, err := url.Parse(r.target)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	for k, v := range r.filter.Params() {
		q[k] = v
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Page is one decoded response.
type Page struct {
	// Records are the page's results in server order.
	Records []record.Record

	// Total is the server's estimate of matching records, valid when TotalKnown.
	Total      int64
	TotalKnown bool

	// Next is the continuation URL, empty on the last page.
	Next string
}

// HasNext reports whether the page carries a continuation reference.
func (p *Page) HasNext() bool {
	return p != nil && p.Next != ""
}

// pageBody is the JSON layout of a Data Fair "lines" response.
type pageBody struct {
	Results []record.Record `json:"results"`
	Total   json.RawMessage `json:"total"`
	Next    *string         `json:"next"`
}

// decodePage decodes a response body. An empty body is an empty last page.
func decodePage(body []byte) (*Page, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return &Page{}, nil
	}

	var pb pageBody
	if err := json.Unmarshal(body, &pb); err != nil {
		return nil, err
	}

	page := &Page{Records: pb.Results}
	if pb.Next != nil {
		page.Next = *pb.Next
	}
	if n, err := strconv.ParseInt(strings.TrimSpace(string(pb.Total)), 10, 64); err == nil {
		page.Total = n
		page.TotalKnown = true
	}
	return page, nil
}
