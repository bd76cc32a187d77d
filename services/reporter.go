package services

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"rental-insights/models"
)

// PrintRunReport formats and prints the run summary to the terminal
func PrintRunReport(w io.Writer, report *models.RunReport, cities []string) {
	border := strings.Repeat("═", 60)
	thin := strings.Repeat("─", 60)

	fmt.Fprintf(w, "\n╔%s╗\n", border)
	fmt.Fprintf(w, "║%s║\n", center("SHORT-TERM RENTAL MARKET REPORT", 60))
	fmt.Fprintf(w, "╚%s╝\n", border)

	fmt.Fprintf(w, "\n RUN\n%s\n", thin)
	fmt.Fprintf(w, "  Run ID                  : %s\n", report.RunID)
	if !report.FinishedAt.IsZero() {
		fmt.Fprintf(w, "  Duration                : %s\n", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	}
	if report.RawRecords > 0 {
		fmt.Fprintf(w, "  Raw Records             : %s\n", humanize.Comma(int64(report.RawRecords)))
		fmt.Fprintf(w, "  Clean Listings          : %s\n", humanize.Comma(int64(report.CleanListings)))
		fmt.Fprintf(w, "  Clean Hosts             : %s\n", humanize.Comma(int64(report.CleanHosts)))
		fmt.Fprintf(w, "  Unresolved Amenities    : %s\n", humanize.Comma(int64(report.UnresolvedNames)))
	}
	if !report.Window.Current.IsZero() {
		fmt.Fprintf(w, "  Current Quarter         : %s (baseline %s)\n", report.Window.Current, report.Window.Baseline)
	}

	if len(report.Load.Phases) > 0 {
		fmt.Fprintf(w, "\n LOAD PHASES\n%s\n", thin)
		for _, p := range report.Load.Phases {
			line := fmt.Sprintf("  %-22s %-8s %10s rows", p.Phase, p.Status, humanize.Comma(int64(p.Rows)))
			if p.Skipped > 0 {
				line += fmt.Sprintf(", %s skipped", humanize.Comma(int64(p.Skipped)))
			}
			fmt.Fprintln(w, line)
			if p.Reason != "" {
				fmt.Fprintf(w, "      %s\n", truncate(p.Reason, 52))
			}
		}
	}

	if len(report.Metrics) > 0 {
		fmt.Fprintf(w, "\n ACTIVE LISTINGS PER CITY\n%s\n", thin)
		fmt.Fprintf(w, "  %-20s %8s %7s %10s %9s\n", "City", "Active", "Delta", "Median $", "Delta $")
		for _, scope := range append([]string{models.AllCities}, cities...) {
			m, ok := report.Metrics[scope]
			if !ok {
				continue
			}
			fmt.Fprintf(w, "  %-20s %8s %+7d %10s %+9.0f\n",
				truncate(scope, 20), humanize.Comma(int64(m.ActiveListings)), m.ActiveListingsDelta,
				price(m.MedianPrice), m.MedianPriceDelta)
		}
	}

	if len(report.Impacts) > 0 {
		fmt.Fprintf(w, "\n TOP %d AMENITY PRICE IMPACTS (ALL CITIES)\n%s\n", len(report.Impacts), thin)
		for i, is := range report.Impacts {
			fmt.Fprintf(w, "  %d. %-32s %+6d  (%s listings)\n",
				i+1, truncate(is.Amenity, 32), is.MedianPriceDifference, humanize.Comma(int64(is.AmenityCount)))
		}
	}

	fmt.Fprintf(w, "\n%s\n\n", border)
}

func price(p *float64) string {
	if p == nil {
		return "n/a"
	}
	return "$" + humanize.CommafWithDigits(*p, 0)
}

func center(s string, width int) string {
	runes := []rune(s)
	if len(runes) >= width {
		return s
	}
	pad := (width - len(runes)) / 2
	return strings.Repeat(" ", pad) + s + strings.Repeat(" ", width-len(runes)-pad)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
