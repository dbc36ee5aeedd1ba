package converter

import (
	"bytes"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/johnqtcg/threaddigest/internal/thread"
)

type frontMatter struct {
	Source          string   `yaml:"source"`
	Kind            string   `yaml:"kind,omitempty"`
	Title           string   `yaml:"title"`
	Author          string   `yaml:"author,omitempty"`
	URL             string   `yaml:"url"`
	CreatedAt       string   `yaml:"created_at,omitempty"`
	UpdatedAt       string   `yaml:"updated_at,omitempty"`
	Labels          []string `yaml:"labels"`
	EngagementScore int      `yaml:"engagement_score"`
	Containers      int      `yaml:"containers"`
	Comments        int      `yaml:"comments"`
	AnalysisStatus  string   `yaml:"analysis_status,omitempty"`
	AnalysisChunks  int      `yaml:"analysis_chunks,omitempty"`
}

// renderFrontMatter describes the single container, or the digest as a
// whole when there are several.
func renderFrontMatter(containers []thread.Container, sourceURL, analysisStatus string, analysisChunks int) (string, error) {
	fm := frontMatter{
		Containers:     len(containers),
		Labels:         []string{},
		AnalysisStatus: analysisStatus,
		AnalysisChunks: analysisChunks,
	}
	for _, c := range containers {
		fm.Comments += len(c.Comments)
		fm.EngagementScore += c.EngagementScore
	}

	if len(containers) == 1 {
		c := containers[0]
		fm.Source = string(c.Source)
		fm.Kind = string(c.Kind)
		fm.Title = c.Title
		fm.Author = c.Author
		fm.URL = c.URL
		fm.CreatedAt = formatTime(c.CreatedAt)
		fm.UpdatedAt = formatTime(c.UpdatedAt)
		if len(c.Labels) > 0 {
			fm.Labels = c.Labels
		}
	} else {
		fm.Source = string(containers[0].Source)
		fm.Title = fmt.Sprintf("Digest of %d threads", len(containers))
		fm.URL = sourceURL
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fm); err != nil {
		return "", fmt.Errorf("encode front matter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encode front matter: %w", err)
	}
	return "---\n" + buf.String() + "---\n\n", nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
