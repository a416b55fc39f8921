package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	FormatText     = "text"
	FormatMarkdown = "md"
	FormatJSON     = "json"
)

// Render formats summary as text, markdown or JSON.
func Render(summary Summary, format string) ([]byte, error) {
	switch format {
	case "", FormatText:
		return []byte(RenderText(summary)), nil
	case FormatMarkdown:
		return []byte(RenderMarkdown(summary)), nil
	case FormatJSON:
		return RenderJSON(summary)
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

func RenderText(summary Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Total: %d\n", summary.Total)
	fmt.Fprintf(&b, "Succeeded: %d\n", summary.Succeeded)
	fmt.Fprintf(&b, "Failed: %d\n", summary.Failed)
	fmt.Fprintf(&b, "Cache hit ratio: %.1f%%\n", summary.Cache.HitRatio*100)
	fmt.Fprintf(&b, "Latency p50/p95/p99 (us): %.0f/%.0f/%.0f\n", summary.Latency.P50, summary.Latency.P95, summary.Latency.P99)

	writeCounts(&b, "Operations", summary.Operations)
	writeCounts(&b, "Failures by code", summary.Failures)
	writeCounts(&b, "Top symlinks", summary.TopSymlinks)

	return b.String()
}

func RenderMarkdown(summary Summary) string {
	var b strings.Builder
	b.WriteString("# pathcanon report\n\n")
	b.WriteString("## Totals\n\n")
	fmt.Fprintf(&b, "- Total: %d\n", summary.Total)
	fmt.Fprintf(&b, "- Succeeded: %d\n", summary.Succeeded)
	fmt.Fprintf(&b, "- Failed: %d\n", summary.Failed)
	fmt.Fprintf(&b, "- Cache hit ratio: %.1f%%\n", summary.Cache.HitRatio*100)
	fmt.Fprintf(&b, "- Latency p50/p95/p99 (us): %.0f/%.0f/%.0f\n\n", summary.Latency.P50, summary.Latency.P95, summary.Latency.P99)

	writeCountsMarkdown(&b, "Operations", summary.Operations)
	writeCountsMarkdown(&b, "Failures by code", summary.Failures)
	writeCountsMarkdown(&b, "Top symlinks", summary.TopSymlinks)

	return b.String()
}

func RenderJSON(summary Summary) ([]byte, error) {
	return json.MarshalIndent(summary, "", "  ")
}

func writeCounts(b *strings.Builder, title string, items []CountItem) {
	if len(items) == 0 {
		fmt.Fprintf(b, "%s: none\n", title)
		return
	}
	fmt.Fprintf(b, "%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s: %d\n", item.Key, item.Count)
	}
}

func writeCountsMarkdown(b *strings.Builder, title string, items []CountItem) {
	b.WriteString("## ")
	b.WriteString(title)
	b.WriteString("\n\n")
	if len(items) == 0 {
		b.WriteString("- none\n\n")
		return
	}
	for _, item := range items {
		fmt.Fprintf(b, "- `%s`: %d\n", item.Key, item.Count)
	}
	b.WriteString("\n")
}

// WriteOutput writes content to path, or to stdout when path is empty.
func WriteOutput(stdout io.Writer, path string, content []byte) error {
	if path == "" {
		_, err := stdout.Write(content)
		return err
	}
	return os.WriteFile(path, content, 0o600)
}
