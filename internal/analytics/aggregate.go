package analytics

import (
	"sort"
	"strings"

	"github.com/kiranshivaraju/carbonledger/pkg/models"
	"github.com/shopspring/decimal"
)

// PageSize is the fixed history page length.
const PageSize = 10

// Sort keys and orders accepted by Query.
const (
	SortByStartDate = "start_date"
	SortByCreatedAt = "created_at"
	OrderAsc        = "asc"
	OrderDesc       = "desc"
)

// Query selects and shapes an organization's entries.
type Query struct {
	Scope     string
	From      *models.Date
	To        *models.Date
	SortBy    string
	SortOrder string
	Page      int
}

// Normalize applies defaults: unknown sort keys and orders fall back to
// start_date/desc and pages below 1 become 1.
func (q Query) Normalize() Query {
	if q.SortBy != SortByCreatedAt {
		q.SortBy = SortByStartDate
	}
	if q.SortOrder != OrderAsc {
		q.SortOrder = OrderDesc
	}
	if q.Page < 1 {
		q.Page = 1
	}
	return q
}

type Summary struct {
	Total  decimal.Decimal `json:"total"`
	Scope1 decimal.Decimal `json:"scope1"`
	Scope2 decimal.Decimal `json:"scope2"`
}

type MonthlyBucket struct {
	Month  string          `json:"month"`
	Scope1 decimal.Decimal `json:"scope1"`
	Scope2 decimal.Decimal `json:"scope2"`
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Result is the analytics view of one organization.
type Result struct {
	Summary    Summary                       `json:"summary"`
	Monthly    []MonthlyBucket               `json:"monthly"`
	History    []*models.ActivityEntryDetail `json:"history"`
	Pagination Pagination                    `json:"pagination"`
}

// Aggregate filters, sorts, summarizes and paginates entries. It is a pure
// function of its inputs and does not modify the entries slice.
func Aggregate(entries []*models.ActivityEntryDetail, q Query) *Result {
	q = q.Normalize()

	filtered := make([]*models.ActivityEntryDetail, 0, len(entries))
	for _, e := range entries {
		if q.Scope != "" && e.ScopeType() != q.Scope {
			continue
		}
		filtered = append(filtered, e)
	}

	sortEntries(filtered, q.SortBy, q.SortOrder)

	res := &Result{
		Summary: Summary{Total: decimal.Zero, Scope1: decimal.Zero, Scope2: decimal.Zero},
		Monthly: []MonthlyBucket{},
		History: []*models.ActivityEntryDetail{},
	}

	months := make(map[string]*MonthlyBucket)
	for _, e := range filtered {
		res.Summary.Total = res.Summary.Total.Add(e.CO2Emissions)

		month := e.StartDate.Month()
		b, ok := months[month]
		if !ok {
			b = &MonthlyBucket{Month: month, Scope1: decimal.Zero, Scope2: decimal.Zero}
			months[month] = b
		}

		switch e.ScopeType() {
		case models.Scope1:
			res.Summary.Scope1 = res.Summary.Scope1.Add(e.CO2Emissions)
			b.Scope1 = b.Scope1.Add(e.CO2Emissions)
		case models.Scope2:
			res.Summary.Scope2 = res.Summary.Scope2.Add(e.CO2Emissions)
			b.Scope2 = b.Scope2.Add(e.CO2Emissions)
		}
	}

	for _, b := range months {
		res.Monthly = append(res.Monthly, *b)
	}
	sort.Slice(res.Monthly, func(i, j int) bool { return res.Monthly[i].Month < res.Monthly[j].Month })

	total := len(filtered)
	totalPages := (total + PageSize - 1) / PageSize
	if q.Page <= totalPages {
		start := (q.Page - 1) * PageSize
		end := min(start+PageSize, total)
		res.History = append(res.History, filtered[start:end]...)
	}

	res.Pagination = Pagination{
		Page:       q.Page,
		Limit:      PageSize,
		Total:      total,
		TotalPages: totalPages,
	}
	return res
}

// sortEntries orders by the parsed date or timestamp, breaking ties by id so
// repeated calls over the same data always agree.
func sortEntries(entries []*models.ActivityEntryDetail, by, order string) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]

		var c int
		if by == SortByCreatedAt {
			c = a.CreatedAt.Compare(b.CreatedAt)
		} else {
			c = a.StartDate.Compare(b.StartDate.Time)
		}
		if c == 0 {
			c = strings.Compare(a.ID.String(), b.ID.String())
		}
		if order == OrderAsc {
			return c < 0
		}
		return c > 0
	})
}
