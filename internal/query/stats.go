package query

import (
	"sort"
	"time"

	"github.com/diagnosis/visitor-management/internal/domain"
)

const topHostsLimit = 5

type HourCount struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

type HostCount struct {
	HostID   string `json:"host_id"`
	HostName string `json:"host_name"`
	Count    int    `json:"count"`
}

type LocationCount struct {
	LocationID   string `json:"location_id"`
	LocationName string `json:"location_name"`
	Count        int    `json:"count"`
}

type Stats struct {
	TodayVisitors      int             `json:"today_visitors"`
	ExpectedVisitors   int             `json:"expected_visitors"`
	CheckedIn          int             `json:"checked_in"`
	CheckedOut         int             `json:"checked_out"`
	VisitorsByHour     []HourCount     `json:"visitors_by_hour"`
	TopHosts           []HostCount     `json:"top_hosts"`
	VisitorsByLocation []LocationCount `json:"visitors_by_location"`
}

// Summarize builds the dashboard counters for the calendar day containing now
// in loc. Canceled visits count nowhere.
func Summarize(records []domain.VisitRecord, now time.Time, loc *time.Location) Stats {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	stats := Stats{VisitorsByHour: make([]HourCount, 24)}
	for h := range stats.VisitorsByHour {
		stats.VisitorsByHour[h].Hour = h
	}

	hosts := map[string]*HostCount{}
	locations := map[string]*LocationCount{}

	for _, r := range records {
		if r.Visit.Status == domain.VisitCanceled {
			continue
		}
		at := r.Visit.EffectiveTime()
		if !inRange(at, &dayStart, &dayEnd) {
			continue
		}

		stats.TodayVisitors++
		switch r.Visit.Status {
		case domain.VisitExpected:
			stats.ExpectedVisitors++
		case domain.VisitCheckedIn:
			stats.CheckedIn++
		case domain.VisitCheckedOut:
			stats.CheckedOut++
		}
		stats.VisitorsByHour[at.In(loc).Hour()].Count++

		if hc, ok := hosts[r.Visit.HostID]; ok {
			hc.Count++
		} else {
			hosts[r.Visit.HostID] = &HostCount{HostID: r.Visit.HostID, HostName: r.Host.Name, Count: 1}
		}
		if lc, ok := locations[r.Visit.LocationID]; ok {
			lc.Count++
		} else {
			locations[r.Visit.LocationID] = &LocationCount{LocationID: r.Visit.LocationID, LocationName: r.Location.Name, Count: 1}
		}
	}

	stats.TopHosts = make([]HostCount, 0, len(hosts))
	for _, hc := range hosts {
		stats.TopHosts = append(stats.TopHosts, *hc)
	}
	sort.Slice(stats.TopHosts, func(i, j int) bool {
		a, b := stats.TopHosts[i], stats.TopHosts[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.HostName < b.HostName
	})
	if len(stats.TopHosts) > topHostsLimit {
		stats.TopHosts = stats.TopHosts[:topHostsLimit]
	}

	stats.VisitorsByLocation = make([]LocationCount, 0, len(locations))
	for _, lc := range locations {
		stats.VisitorsByLocation = append(stats.VisitorsByLocation, *lc)
	}
	sort.Slice(stats.VisitorsByLocation, func(i, j int) bool {
		a, b := stats.VisitorsByLocation[i], stats.VisitorsByLocation[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.LocationName < b.LocationName
	})

	return stats
}
