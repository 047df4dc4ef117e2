package pagination

import (
	"net/http"
	"strconv"
)

const (
	// DefaultPage is the page used when none is specified.
	DefaultPage = 1
	// DefaultPerPage is the page size used when none is specified.
	DefaultPerPage = 20
	// MaxPerPage caps the page size to protect the store.
	MaxPerPage = 100
)

// Params holds normalized pagination parameters.
type Params struct {
	Page    int
	PerPage int
}

// Offset returns the row offset for the current page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// Limit returns the row limit for the current page.
func (p Params) Limit() int {
	return p.PerPage
}

// FromRequest extracts pagination parameters from the request query string
// (?page=N&per_page=M), clamping out-of-range values to defaults.
func FromRequest(r *http.Request) Params {
	p := Params{Page: DefaultPage, PerPage: DefaultPerPage}

	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Page = n
		}
	}

	if v := r.URL.Query().Get("per_page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			if n > MaxPerPage {
				n = MaxPerPage
			}
			p.PerPage = n
		}
	}

	return p
}
