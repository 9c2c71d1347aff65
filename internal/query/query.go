// Package query filters, sorts and pages joined visit records. Everything
// here is pure: the same input always yields the same output.
package query

import (
	"sort"
	"strings"
	"time"

	"github.com/diagnosis/visitor-management/internal/domain"
)

const DefaultPageSize = 10

// StatusAll disables the status filter.
const StatusAll = "all"

type SortKey string

const (
	SortNone     SortKey = ""
	SortVisitor  SortKey = "visitor"
	SortHost     SortKey = "host"
	SortLocation SortKey = "location"
	SortStatus   SortKey = "status"
	SortTime     SortKey = "time"
	SortCreated  SortKey = "created"
)

func ParseSortKey(s string) (SortKey, bool) {
	switch SortKey(strings.ToLower(strings.TrimSpace(s))) {
	case SortNone:
		return SortNone, true
	case SortVisitor:
		return SortVisitor, true
	case SortHost:
		return SortHost, true
	case SortLocation:
		return SortLocation, true
	case SortStatus:
		return SortStatus, true
	case SortTime:
		return SortTime, true
	case SortCreated:
		return SortCreated, true
	}
	return "", false
}

type Query struct {
	Search   string
	Status   string
	HostID   string
	From     *time.Time // inclusive, on the effective time
	To       *time.Time // exclusive
	Page     int
	PageSize int
	SortBy   SortKey
	Desc     bool
}

type Result struct {
	Items      []domain.VisitRecord `json:"items"`
	Total      int                  `json:"total"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"page_size"`
	TotalPages int                  `json:"total_pages"`
}

// Run applies q to records. Pages past the end yield no items, not an error.
func Run(records []domain.VisitRecord, q Query) Result {
	matched := Filter(records, q)

	page := q.Page
	if page < 1 {
		page = 1
	}
	size := q.PageSize
	if size < 1 {
		size = DefaultPageSize
	}

	res := Result{
		Items:      []domain.VisitRecord{},
		Total:      len(matched),
		Page:       page,
		PageSize:   size,
	}
	if len(matched) > 0 {
		res.TotalPages = (len(matched)-1)/size + 1
	}
	if page > res.TotalPages {
		return res
	}

	start := (page - 1) * size
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}
	res.Items = matched[start:end]
	return res
}

// Filter returns every record matching q, sorted, without paging. The input
// slice is not modified.
func Filter(records []domain.VisitRecord, q Query) []domain.VisitRecord {
	needle := strings.ToLower(strings.TrimSpace(q.Search))
	status := strings.TrimSpace(q.Status)
	if strings.EqualFold(status, StatusAll) {
		status = ""
	}

	out := make([]domain.VisitRecord, 0, len(records))
	for _, r := range records {
		if status != "" && string(r.Visit.Status) != status {
			continue
		}
		if q.HostID != "" && r.Visit.HostID != q.HostID {
			continue
		}
		if !inRange(r.Visit.EffectiveTime(), q.From, q.To) {
			continue
		}
		if needle != "" && !matches(r, needle) {
			continue
		}
		out = append(out, r)
	}

	if q.SortBy != SortNone {
		less := lessFunc(q.SortBy)
		sort.SliceStable(out, func(i, j int) bool {
			if q.Desc {
				return less(out[j], out[i])
			}
			return less(out[i], out[j])
		})
	}
	return out
}

func matches(r domain.VisitRecord, needle string) bool {
	for _, field := range []string{
		r.Visitor.Name,
		r.Visitor.Email,
		r.Visitor.Company,
		r.Host.Name,
		r.Location.Name,
	} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func inRange(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && !t.Before(*to) {
		return false
	}
	return true
}

func lessFunc(key SortKey) func(a, b domain.VisitRecord) bool {
	switch key {
	case SortVisitor:
		return func(a, b domain.VisitRecord) bool {
			return strings.ToLower(a.Visitor.Name) < strings.ToLower(b.Visitor.Name)
		}
	case SortHost:
		return func(a, b domain.VisitRecord) bool {
			return strings.ToLower(a.Host.Name) < strings.ToLower(b.Host.Name)
		}
	case SortLocation:
		return func(a, b domain.VisitRecord) bool {
			return strings.ToLower(a.Location.Name) < strings.ToLower(b.Location.Name)
		}
	case SortStatus:
		return func(a, b domain.VisitRecord) bool { return a.Visit.Status < b.Visit.Status }
	case SortCreated:
		return func(a, b domain.VisitRecord) bool { return a.Visit.CreatedAt.Before(b.Visit.CreatedAt) }
	default:
		return func(a, b domain.VisitRecord) bool {
			return a.Visit.EffectiveTime().Before(b.Visit.EffectiveTime())
		}
	}
}
