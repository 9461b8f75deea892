package report

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/sells-group/billscan/internal/model"
)

var foldCaser = cases.Fold()

// MatchesEntity reports whether a customer identity matches the filter:
// a caseless substring match against the customer name or identifier.
// An empty filter matches everything.
func MatchesEntity(name, identifier, filter string) bool {
	if filter == "" {
		return true
	}
	needle := foldCaser.String(filter)
	return strings.Contains(foldCaser.String(name), needle) ||
		strings.Contains(foldCaser.String(identifier), needle)
}

// Normalize reorganizes a final report in place: customers not matching the
// entity filter are dropped, empty sites and customers are pruned, and each
// site's data points are sorted oldest to newest by billing period. It only
// reorders and removes, it never invents or rewrites values.
func Normalize(r *model.FinalReport, entityFilter string) {
	customers := r.Customers[:0]
	for _, c := range r.Customers {
		if !MatchesEntity(c.CustomerName, c.CustomerIdentifier, entityFilter) {
			continue
		}
		sites := c.Sites[:0]
		for _, s := range c.Sites {
			if len(s.Data) == 0 {
				continue
			}
			sortDataPoints(s.Data)
			sites = append(sites, s)
		}
		c.Sites = sites
		if len(c.Sites) == 0 {
			continue
		}
		customers = append(customers, c)
	}
	r.Customers = customers
}

func sortDataPoints(data []model.DataPoint) {
	sort.SliceStable(data, func(i, j int) bool {
		ti, iOK := parsePeriodStart(data[i].BillingPeriod)
		tj, jOK := parsePeriodStart(data[j].BillingPeriod)
		switch {
		case iOK && jOK:
			return ti.Before(tj)
		case iOK:
			return true
		case jOK:
			return false
		default:
			return data[i].BillingPeriod < data[j].BillingPeriod
		}
	})
}

var periodLayouts = []string{
	"2006-01-02",
	"2006-01",
	"2006/01",
	"01/2006",
	"01/02/2006",
	"02.01.2006",
	"January 2006",
	"Jan 2006",
	"Jan 02, 2006",
	"January 02, 2006",
	"02 January 2006",
	"2006",
}

// parsePeriodStart extracts a sortable start date from a free-form billing
// period. Ranges like "Jan 2026 - Feb 2026" sort by their start. Periods
// that fit no known layout fall back to lexicographic order.
func parsePeriodStart(period string) (time.Time, bool) {
	s := strings.TrimSpace(period)
	for _, sep := range []string{" - ", " – ", " to ", " through "} {
		if idx := strings.Index(s, sep); idx > 0 {
			s = strings.TrimSpace(s[:idx])
			break
		}
	}
	for _, layout := range periodLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
