package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/vulnscraper/vuln-scraper/types"
)

const maxRenderedReferences = 3

func renderSummary(results []types.SourceResult) {
	var ok, failed []string
	for _, res := range results {
		if res.Err != nil {
			failed = append(failed, fmt.Sprintf("%s (%s)", res.Source, res.Err.Kind))
			continue
		}
		ok = append(ok, fmt.Sprintf("%s (%d)", res.Source, len(res.Records)))
	}

	if len(ok) > 0 {
		color.Green("Successfully retrieved data from: %s", strings.Join(ok, ", "))
	}
	if len(failed) > 0 {
		color.Red("Failed sources: %s", strings.Join(failed, ", "))
	}
}

func renderResults(records []types.MergedRecord) {
	if len(records) == 0 {
		color.Yellow("No results found.")
		return
	}

	for _, r := range records {
		fmt.Println()

		title := r.CVEID
		if title == "" {
			title = "(no CVE assigned)"
		}
		color.New(color.FgCyan, color.Bold).Println(title)

		if r.CVSSScore != nil {
			scoreColor(*r.CVSSScore).Printf("CVSS Score: %.1f (%s)\n", *r.CVSSScore, r.Severity)
		} else {
			fmt.Printf("Severity: %s\n", r.Severity)
		}

		if r.Product != "" {
			product := r.Product
			if r.Version != "" {
				product += " " + r.Version
			}
			fmt.Printf("Product: %s\n", product)
		}

		fmt.Println(r.Title)
		fmt.Printf("Sources: %s\n", joinSources(r.ContributingSources))

		for i, ref := range r.References {
			if i >= maxRenderedReferences {
				break
			}
			color.Blue("- %s", ref)
		}
	}
}

func scoreColor(score float64) *color.Color {
	switch {
	case score >= 7:
		return color.New(color.FgRed, color.Bold)
	case score >= 4:
		return color.New(color.FgYellow, color.Bold)
	default:
		return color.New(color.FgGreen, color.Bold)
	}
}

func joinSources(sources []types.Source) string {
	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, s.String())
	}
	return strings.Join(names, ", ")
}
