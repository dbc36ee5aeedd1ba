package converter

import (
	"fmt"
	"strings"

	"github.com/johnqtcg/threaddigest/internal/analysis"
	"github.com/johnqtcg/threaddigest/internal/thread"
)

func renderMetadataSection(c thread.Container, heading, analysisStatus string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s Metadata\n", heading)
	fmt.Fprintf(&b, "- source: %s\n", c.Source)
	fmt.Fprintf(&b, "- kind: %s\n", c.Kind)
	fmt.Fprintf(&b, "- author: %s\n", thread.AuthorOrUnknown(c.Author))
	fmt.Fprintf(&b, "- created_at: %s\n", orUnknown(formatTime(c.CreatedAt)))
	if !c.UpdatedAt.IsZero() {
		fmt.Fprintf(&b, "- updated_at: %s\n", formatTime(c.UpdatedAt))
	}
	fmt.Fprintf(&b, "- url: %s\n", c.URL)
	fmt.Fprintf(&b, "- labels: %s\n", joinLabels(c.Labels))
	fmt.Fprintf(&b, "- engagement_score: %d\n", c.EngagementScore)
	fmt.Fprintf(&b, "- comments: %d\n", len(c.Comments))
	if analysisStatus != "" {
		fmt.Fprintf(&b, "- analysis_status: %s\n", analysisStatus)
	}

	return b.String()
}

func renderAnalysisSection(result analysis.Result) string {
	var b strings.Builder

	b.WriteString("## Analysis\n\n")
	if result.Chunks > 1 {
		fmt.Fprintf(&b, "_Analyzed in %d parts._\n\n", result.Chunks)
	}
	b.WriteString(demoteHeadings(strings.TrimSpace(result.Markdown)))
	b.WriteString("\n")
	return b.String()
}

// demoteHeadings pushes analyzer headings below the section heading so the
// document outline stays intact.
func demoteHeadings(md string) string {
	lines := strings.Split(md, "\n")
	inFence := false
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if !inFence && strings.HasPrefix(line, "#") {
			lines[i] = "##" + line
		}
	}
	return strings.Join(lines, "\n")
}

func renderDigestIndex(containers []thread.Container) string {
	var b strings.Builder
	for i, c := range containers {
		fmt.Fprintf(&b, "%d. [%s](%s) (%s, %d comments)\n", i+1, c.Title, c.URL, c.Kind, len(c.Comments))
	}
	return b.String()
}

func renderContainerBody(c thread.Container, heading string, includeComments bool) string {
	var b strings.Builder

	fmt.Fprintf(&b, "\n%s Original Description\n\n", heading)
	if strings.TrimSpace(c.Body) == "" {
		b.WriteString("(empty)\n")
	} else {
		b.WriteString(c.Body)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\n%s Discussion Thread\n", heading)
	if !includeComments {
		b.WriteString("Comments omitted (--include-comments=false).\n")
		return b.String()
	}
	if len(c.Comments) == 0 {
		b.WriteString("- none\n")
		return b.String()
	}

	writeCommentList(&b, c.Comments)
	return b.String()
}

// writeCommentList renders the flat comment list as a nested markdown list,
// indenting each comment by its reply depth.
func writeCommentList(b *strings.Builder, comments []thread.Comment) {
	depths := thread.Depths(comments)
	for i, comment := range comments {
		prefix := strings.Repeat("  ", depths[i])
		body := strings.ReplaceAll(strings.TrimRight(comment.Content, "\n"), "\n", "\n"+prefix+"  ")
		fmt.Fprintf(b, "%s- %s (%s): %s\n", prefix, thread.AuthorOrUnknown(comment.Author), orUnknown(formatTime(comment.CreatedAt)), body)

		if comment.FilePath == "" {
			continue
		}
		location := comment.FilePath
		if comment.LinePosition > 0 {
			location = fmt.Sprintf("%s:%d", comment.FilePath, comment.LinePosition)
		}
		fmt.Fprintf(b, "%s  - file: `%s`\n", prefix, location)
		if comment.CodeContext != "" {
			fence := prefix + "    "
			fmt.Fprintf(b, "%s```diff\n", fence)
			for _, line := range strings.Split(strings.TrimRight(comment.CodeContext, "\n"), "\n") {
				fmt.Fprintf(b, "%s%s\n", fence, line)
			}
			fmt.Fprintf(b, "%s```\n", fence)
		}
	}
}

func joinLabels(labels []string) string {
	if len(labels) == 0 {
		return "none"
	}
	return strings.Join(labels, ", ")
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
