package cli

import (
	"fmt"
	"strings"
)

// ItemStatus indicates per-item run outcome.
type ItemStatus string

const (
	// StatusOK indicates a single item succeeded.
	StatusOK ItemStatus = "OK"
	// StatusFailed indicates a single item failed.
	StatusFailed ItemStatus = "FAILED"
)

// ItemResult stores one URL processing result.
type ItemResult struct {
	URL string
	// Target is the parsed identity, e.g. "github:octo/repo#1" or "reddit:r/golang".
	Target     string
	Status     ItemStatus
	Reason     string
	OutputPath string
	Containers int
	Comments   int
}

// RunSummary stores overall run stats and per-item outcomes.
type RunSummary struct {
	Total     int
	Succeeded int
	Failed    int
	Comments  int
	Items     []ItemResult
}

// BuildSummary computes aggregate counters from item results.
func BuildSummary(items []ItemResult) RunSummary {
	out := RunSummary{
		Total: len(items),
		Items: append([]ItemResult(nil), items...),
	}

	for _, item := range items {
		if item.Status == StatusOK {
			out.Succeeded++
			out.Comments += item.Comments
		} else {
			out.Failed++
		}
	}
	return out
}

// FormatSummary renders a human-readable summary with failure details.
func FormatSummary(summary RunSummary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "OK total=%d succeeded=%d failed=%d comments=%d\n", summary.Total, summary.Succeeded, summary.Failed, summary.Comments)
	for _, item := range summary.Items {
		if item.Status != StatusFailed {
			continue
		}
		fmt.Fprintf(
			&b,
			"FAILED url=%s target=%s reason=%s\n",
			item.URL,
			orUnknownTarget(item.Target),
			item.Reason,
		)
	}

	return strings.TrimSuffix(b.String(), "\n")
}

func orUnknownTarget(target string) string {
	if target == "" {
		return "unknown"
	}
	return target
}
