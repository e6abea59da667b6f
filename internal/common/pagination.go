package common

import "strconv"

const (
	DefaultPageSize = 25
	MaxPageSize     = 100
	// keeps Offset well inside int range
	MaxPage = 1_000_000
)

type Page struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

func (p Page) Limit() int  { return p.PageSize }
func (p Page) Offset() int { return (p.Page - 1) * p.PageSize }

// Paginate parses page/pageSize query values. Missing, zero or unparsable sizes
// fall back to DefaultPageSize; others are clamped to [1, MaxPageSize]. Pages
// are clamped to [1, MaxPage].
func Paginate(page, pageSize string) Page {
	p, err := strconv.Atoi(page)
	if err != nil || p < 1 {
		p = 1
	}
	if p > MaxPage {
		p = MaxPage
	}
	size, err := strconv.Atoi(pageSize)
	if err != nil || size == 0 {
		size = DefaultPageSize
	}
	if size < 1 {
		size = 1
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return Page{Page: p, PageSize: size}
}
