package query

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/diagnosis/visitor-management/internal/domain"
)

var csvHeader = []string{
	"visit_id", "visitor_name", "visitor_email", "company", "purpose",
	"host", "location", "status", "scheduled_at", "check_in", "check_out", "duration",
}

// WriteCSV writes one row per record, times rendered in loc.
func WriteCSV(w io.Writer, records []domain.VisitRecord, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.Visit.ID,
			r.Visitor.Name,
			r.Visitor.Email,
			r.Visitor.Company,
			r.Visitor.Purpose,
			r.Host.Name,
			r.Location.Name,
			string(r.Visit.Status),
			formatTime(&r.Visit.ScheduledAt, loc),
			formatTime(r.Visit.CheckInTime, loc),
			formatTime(r.Visit.CheckOutTime, loc),
			r.Duration(),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %s: %w", r.Visit.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatTime(t *time.Time, loc *time.Location) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.In(loc).Format("2006-01-02 15:04")
}
