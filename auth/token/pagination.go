package token

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	DefaultSort     = "issued_at"

	// MaxPage keeps Page*Size within an int for any accepted size.
	MaxPage = math.MaxInt / MaxPageSize
)

// SortFields maps the accepted sort keys to their column names.
var SortFields = map[string]string{
	"id":              "id",
	"subject":         "subject",
	"binding_context": "binding_context",
	"enabled":         "enabled",
	"expires_at":      "expires_at",
	"issued_at":       "issued_at",
}

// Pagination selects one page of a subject's credential records.
type Pagination struct {
	Page       int
	Size       int
	Sort       string
	Descending bool
}

// Page is a slice of records plus the total count for the subject.
type Page struct {
	Records []*Record `json:"records"`
	Page    int       `json:"page"`
	Size    int       `json:"size"`
	Total   int64     `json:"total"`
}

// DefaultPagination is the first page, newest first.
func DefaultPagination() Pagination {
	return Pagination{Size: DefaultPageSize, Sort: DefaultSort, Descending: true}
}

// Normalize clamps page and size and checks the sort field against
// SortFields.
func (p Pagination) Normalize() (Pagination, error) {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Page > MaxPage {
		p.Page = MaxPage
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	p.Sort = strings.ToLower(strings.TrimSpace(p.Sort))
	if p.Sort == "" {
		p.Sort = DefaultSort
	}
	if _, ok := SortFields[p.Sort]; !ok {
		return p, fmt.Errorf("%w: %q", ErrInvalidSort, p.Sort)
	}
	return p, nil
}

// Offset is the index of the first record on the page. It saturates at
// math.MaxInt instead of overflowing.
func (p Pagination) Offset() int {
	if p.Page <= 0 || p.Size <= 0 {
		return 0
	}
	if p.Page > math.MaxInt/p.Size {
		return math.MaxInt
	}
	return p.Page * p.Size
}

// OrderClause renders the SQL ORDER BY expression. Ties break on id so that
// pages are stable.
func (p Pagination) OrderClause() string {
	dir := "ASC"
	if p.Descending {
		dir = "DESC"
	}
	col := SortFields[p.Sort]
	if col == "id" {
		return "id " + dir
	}
	return col + " " + dir + ", id " + dir
}

// Apply sorts records in place and cuts out the requested page. Used by
// backends that cannot sort on the server.
func (p Pagination) Apply(records []*Record) *Page {
	less := recordLess(p.Sort)
	sort.SliceStable(records, func(i, j int) bool {
		if p.Descending {
			return less(records[j], records[i])
		}
		return less(records[i], records[j])
	})

	page := &Page{Page: p.Page, Size: p.Size, Total: int64(len(records)), Records: []*Record{}}
	start := p.Offset()
	if start >= len(records) {
		return page
	}
	end := start + p.Size
	if p.Size <= 0 || end > len(records) {
		end = len(records)
	}
	page.Records = records[start:end]
	return page
}

func recordLess(field string) func(a, b *Record) bool {
	tie := func(a, b *Record) bool { return a.ID < b.ID }
	switch field {
	case "id":
		return tie
	case "subject":
		return func(a, b *Record) bool {
			if a.Subject != b.Subject {
				return a.Subject < b.Subject
			}
			return tie(a, b)
		}
	case "binding_context":
		return func(a, b *Record) bool {
			if a.BindingContext != b.BindingContext {
				return a.BindingContext < b.BindingContext
			}
			return tie(a, b)
		}
	case "enabled":
		return func(a, b *Record) bool {
			if a.Enabled != b.Enabled {
				return !a.Enabled
			}
			return tie(a, b)
		}
	case "expires_at":
		return func(a, b *Record) bool {
			if !a.ExpiresAt.Equal(b.ExpiresAt) {
				return a.ExpiresAt.Before(b.ExpiresAt)
			}
			return tie(a, b)
		}
	default:
		return func(a, b *Record) bool {
			if !a.IssuedAt.Equal(b.IssuedAt) {
				return a.IssuedAt.Before(b.IssuedAt)
			}
			return tie(a, b)
		}
	}
}
