// Package results filters, pages and summarises finished tasks for the result viewer.
package results

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/browsertest/dashboard/internal/agentapi"
)

// StatusAll disables status filtering.
const StatusAll = "all"

const DefaultPageSize = 10

// PageSizes are the rows-per-page choices.
var PageSizes = []int{5, 10, 25, 50}

type Filter struct {
	Status string
	Query  string
}

// Match reports whether t passes the status filter and the case-insensitive
// search over task id and result message.
func (f Filter) Match(t agentapi.TaskStatus) bool {
	if f.Status != "" && f.Status != StatusAll && string(t.Status) != f.Status {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(t.TaskID), q) ||
		strings.Contains(strings.ToLower(t.ResultMessage()), q)
}

func Apply(tasks []agentapi.TaskStatus, f Filter) []agentapi.TaskStatus {
	out := make([]agentapi.TaskStatus, 0, len(tasks))
	for _, t := range tasks {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}

type Page struct {
	Items []agentapi.TaskStatus
	Index int // zero-based
	Size  int
	Total int
	Pages int
}

func (p Page) HasPrev() bool { return p.Index > 0 }
func (p Page) HasNext() bool { return p.Index+1 < p.Pages }

// First is the one-based position of the first row, 0 when empty.
func (p Page) First() int {
	if p.Total == 0 {
		return 0
	}
	return p.Index*p.Size + 1
}

func (p Page) Last() int {
	return p.Index*p.Size + len(p.Items)
}

func validSize(size int) bool {
	for _, s := range PageSizes {
		if s == size {
			return true
		}
	}
	return false
}

// Paginate returns page index of tasks. Unknown sizes fall back to
// DefaultPageSize and out-of-range indexes are clamped.
func Paginate(tasks []agentapi.TaskStatus, index, size int) Page {
	if !validSize(size) {
		size = DefaultPageSize
	}
	p := Page{Size: size, Total: len(tasks)}
	p.Pages = (p.Total + size - 1) / size
	if index >= p.Pages {
		index = p.Pages - 1
	}
	if index < 0 {
		index = 0
	}
	p.Index = index

	start := index * size
	end := start + size
	if end > p.Total {
		end = p.Total
	}
	if start < end {
		p.Items = tasks[start:end]
	}
	return p
}

// Query is the result viewer's state as carried in a URL.
type Query struct {
	Filter
	Page int
	Size int
}

// ParseQuery reads status, q, page and size. A request without page starts at
// page 0, so submitting a new filter always lands on the first page.
func ParseQuery(v url.Values) Query {
	q := Query{
		Filter: Filter{Status: v.Get("status"), Query: v.Get("q")},
		Size:   DefaultPageSize,
	}
	if q.Status == "" {
		q.Status = StatusAll
	}
	if n, err := strconv.Atoi(v.Get("page")); err == nil && n >= 0 {
		q.Page = n
	}
	if n, err := strconv.Atoi(v.Get("size")); err == nil && validSize(n) {
		q.Size = n
	}
	return q
}

// Values encodes q for links, overriding the page index.
func (q Query) Values(page int) url.Values {
	v := url.Values{}
	if q.Status != "" && q.Status != StatusAll {
		v.Set("status", q.Status)
	}
	if q.Query != "" {
		v.Set("q", q.Query)
	}
	v.Set("page", strconv.Itoa(page))
	v.Set("size", strconv.Itoa(q.Size))
	return v
}
