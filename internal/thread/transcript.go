package thread

import (
	"fmt"
	"strings"
)

const transcriptIndent = "  "

// WriteTranscriptLine renders one comment as "{indent}Comment by {Author}: {Content}".
// Continuation lines of multi-line content carry the same indent.
func WriteTranscriptLine(b *strings.Builder, c Comment, depth int) {
	prefix := strings.Repeat(transcriptIndent, depth)
	content := strings.ReplaceAll(c.Content, "\n", "\n"+prefix)
	fmt.Fprintf(b, "%sComment by %s: %s\n", prefix, AuthorOrUnknown(c.Author), content)
}

// TreeTranscript renders a reply forest using the same traversal as Flatten.
func TreeTranscript(roots []*Node) string {
	var b strings.Builder
	Walk(roots, func(c Comment, depth int) {
		WriteTranscriptLine(&b, c, depth)
	})
	return b.String()
}

// Transcript serializes containers into the plain-text form handed to the
// analysis step.
func Transcript(containers []Container) string {
	var b strings.Builder
	for i, c := range containers {
		if i > 0 {
			b.WriteString("\n---\n\n")
		}
		fmt.Fprintf(&b, "Title: %s\n", c.Title)
		fmt.Fprintf(&b, "Type: %s %s\n", c.Source, c.Kind)
		fmt.Fprintf(&b, "Author: %s\n", AuthorOrUnknown(c.Author))
		if c.URL != "" {
			fmt.Fprintf(&b, "URL: %s\n", c.URL)
		}
		if len(c.Labels) > 0 {
			fmt.Fprintf(&b, "Labels: %s\n", strings.Join(c.Labels, ", "))
		}
		fmt.Fprintf(&b, "Score: %d\n", c.EngagementScore)
		fmt.Fprintf(&b, "Description:\n%s\n", c.Body)

		if len(c.Comments) == 0 {
			continue
		}
		b.WriteString("\n")
		depths := Depths(c.Comments)
		for j, comment := range c.Comments {
			WriteTranscriptLine(&b, comment, depths[j])
		}
	}
	return b.String()
}
