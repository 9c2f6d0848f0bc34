package services

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"leadcaller/models"
	"leadcaller/utils"
)

type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

// Generate summarises a dataset. The demo lead is excluded from every figure.
func (s *InsightService) Generate(ds *models.Dataset) *models.DatasetReport {
	report := &models.DatasetReport{
		LeadsByType: make(map[string]int),
	}
	if ds == nil || len(ds.Leads) == 0 {
		return report
	}

	type rated struct {
		lead   *models.Lead
		rating float64
	}
	var ratedLeads []rated
	var total float64

	for _, l := range ds.Leads {
		if l.Name == models.DemoLeadName {
			continue
		}
		report.TotalLeads++
		if present(l.Website) {
			report.WithWebsite++
		}
		if present(l.Phone) {
			report.WithPhone++
		}
		if l.MeetsCriteria {
			report.Qualified++
		}
		if present(l.Type) {
			report.LeadsByType[l.Type]++
		}
		if r, err := strconv.ParseFloat(l.AverageRating, 64); err == nil && r > 0 {
			ratedLeads = append(ratedLeads, rated{lead: l, rating: r})
			total += r
		}
	}

	if len(ratedLeads) > 0 {
		report.AverageRating = round2(total / float64(len(ratedLeads)))
	}

	// Top 5 by rating
	sort.SliceStable(ratedLeads, func(i, j int) bool {
		return ratedLeads[i].rating > ratedLeads[j].rating
	})
	if len(ratedLeads) > 5 {
		ratedLeads = ratedLeads[:5]
	}
	for _, r := range ratedLeads {
		report.TopRated = append(report.TopRated, r.lead)
	}

	s.logger.Debug("[insights] %d leads summarised, %d rated", report.TotalLeads, len(ratedLeads))
	return report
}

func (s *InsightService) Print(w io.Writer, searchTerm string, r *models.DatasetReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  📊 LEADS FOR %q\033[0m\n", truncate(searchTerm, 36))
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Leads discovered : \033[1m%d\033[0m\n", r.TotalLeads)
	fmt.Fprintf(w, "  With website     : \033[1m%d\033[0m\n", r.WithWebsite)
	fmt.Fprintf(w, "  With phone       : \033[1m%d\033[0m\n", r.WithPhone)
	fmt.Fprintf(w, "  Meet criteria    : \033[1m%d\033[0m\n", r.Qualified)
	if r.AverageRating > 0 {
		fmt.Fprintf(w, "  Average rating   : \033[1;32m%.2f ★\033[0m\n", r.AverageRating)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Top 5 Highest Rated\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.TopRated) == 0 {
		fmt.Fprintf(w, "  No rated leads found\n")
	} else {
		for i, l := range r.TopRated {
			fmt.Fprintf(w, "  \033[1m%d.\033[0m %-40s \033[1;32m%s ★\033[0m\n",
				i+1, truncate(l.Name, 38), l.AverageRating)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Leads by Type\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.LeadsByType) == 0 {
		fmt.Fprintf(w, "  No category data\n")
	} else {
		type typeCount struct {
			name  string
			count int
		}
		var types []typeCount
		for name, cnt := range r.LeadsByType {
			types = append(types, typeCount{name, cnt})
		}
		sort.Slice(types, func(i, j int) bool {
			if types[i].count == types[j].count {
				return types[i].name < types[j].name
			}
			return types[i].count > types[j].count
		})
		for _, tc := range types {
			bar := strings.Repeat("█", tc.count)
			fmt.Fprintf(w, "  %-30s %s (%d)\n", truncate(tc.name, 28), bar, tc.count)
		}
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

func present(s string) bool {
	return s != "" && s != models.NotAvailable
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
