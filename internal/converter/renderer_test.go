package converter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/johnqtcg/threaddigest/internal/analysis"
	"github.com/johnqtcg/threaddigest/internal/thread"
)

type stubAnalyzer struct {
	result analysis.Result
	err    error
	got    string
}

func (s *stubAnalyzer) Analyze(_ context.Context, text string) (analysis.Result, error) {
	s.got = text
	return s.result, s.err
}

func sampleIssue() thread.Container {
	created := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	return thread.Container{
		ID:              "octo/repo#123",
		Source:          thread.SourceGitHub,
		Kind:            thread.KindIssue,
		Title:           "Panic on nil config",
		Author:          "alice",
		Body:            "App panics when config is nil.",
		URL:             "https://github.com/octo/repo/issues/123",
		CreatedAt:       created,
		UpdatedAt:       created.Add(25 * time.Hour),
		Labels:          []string{"bug", "help wanted"},
		EngagementScore: 4,
		Comments: []thread.Comment{
			{ID: "c1", Author: "bob", Content: "I can reproduce this.", CreatedAt: created.Add(2 * time.Hour)},
			{ID: "c1-r1", ParentID: "c1", Author: "alice", Content: "Thanks, investigating.", CreatedAt: created.Add(3 * time.Hour)},
			{ID: "c2", Author: "carol", Content: "Fixed in #124?", CreatedAt: created.Add(4 * time.Hour)},
		},
	}
}

func samplePR() thread.Container {
	c := sampleIssue()
	c.ID = "octo/repo#7"
	c.Kind = thread.KindPullRequest
	c.Title = "Fix nil config panic"
	c.URL = "https://github.com/octo/repo/pull/7"
	c.Comments = []thread.Comment{
		{ID: "review-1", Author: "bob", Content: "(CHANGES_REQUESTED)"},
		{
			ID: "200", ParentID: "review-1", Author: "bob", Content: "nil check here",
			FilePath: "config.go", LinePosition: 42, CodeContext: "@@ -1,2 +1,3 @@\n+if cfg == nil {",
		},
	}
	return c
}

func TestRendererSectionOrder(t *testing.T) {
	t.Parallel()

	r := NewRenderer(&stubAnalyzer{result: analysis.Result{Markdown: "# Summary\nAll good.", Chunks: 1}})
	out, err := r.Render(context.Background(), []thread.Container{sampleIssue()}, RenderOptions{
		IncludeComments: true,
		IncludeAnalysis: true,
	})
	if err != nil {
		t.Fatalf("Render error = %v, want nil", err)
	}
	content := string(out)

	ordered := []string{
		"---\n",
		"# Panic on nil config",
		"## Analysis",
		"### Summary",
		"## Metadata",
		"## Original Description",
		"## Discussion Thread",
		"## References",
	}

	last := -1
	for _, piece := range ordered {
		idx := strings.Index(content, piece)
		if idx < 0 {
			t.Fatalf("missing section %q\n%s", piece, content)
		}
		if idx <= last {
			t.Fatalf("section order incorrect around %q\n%s", piece, content)
		}
		last = idx
	}
}

func TestRendererIndentsRepliesByDepth(t *testing.T) {
	t.Parallel()

	out, err := NewRenderer(nil).Render(context.Background(), []thread.Container{sampleIssue()}, RenderOptions{IncludeComments: true})
	if err != nil {
		t.Fatalf("Render error = %v, want nil", err)
	}

	want := "- bob (2026-01-01T12:00:00Z): I can reproduce this.\n" +
		"  - alice (2026-01-01T13:00:00Z): Thanks, investigating.\n" +
		"- carol (2026-01-01T14:00:00Z): Fixed in #124?\n"
	if !strings.Contains(string(out), want) {
		t.Fatalf("comment list mismatch, want:\n%s\ngot:\n%s", want, out)
	}
}

func TestRendererReviewCommentContext(t *testing.T) {
	t.Parallel()

	out, err := NewRenderer(nil).Render(context.Background(), []thread.Container{samplePR()}, RenderOptions{IncludeComments: true})
	if err != nil {
		t.Fatalf("Render error = %v, want nil", err)
	}
	content := string(out)

	for _, piece := range []string{
		"  - bob (unknown): nil check here\n",
		"    - file: `config.go:42`\n",
		"      ```diff\n      @@ -1,2 +1,3 @@\n      +if cfg == nil {\n      ```\n",
	} {
		if !strings.Contains(content, piece) {
			t.Fatalf("missing %q\n%s", piece, content)
		}
	}
}

func TestRendererIncludeCommentsOption(t *testing.T) {
	t.Parallel()

	stub := &stubAnalyzer{result: analysis.Result{Markdown: "ok", Chunks: 1}}
	out, err := NewRenderer(stub).Render(context.Background(), []thread.Container{sampleIssue()}, RenderOptions{
		IncludeComments: false,
		IncludeAnalysis: true,
	})
	if err != nil {
		t.Fatalf("Render error = %v, want nil", err)
	}

	content := string(out)
	if strings.Contains(content, "I can reproduce this.") {
		t.Fatalf("comments should be omitted when include-comments=false:\n%s", content)
	}
	if !strings.Contains(content, "Comments omitted (--include-comments=false).") {
		t.Fatalf("output should include omitted note:\n%s", content)
	}
	if strings.Contains(stub.got, "Comment by") {
		t.Fatalf("analysis transcript should not carry omitted comments:\n%s", stub.got)
	}
}

func TestRendererAnalysisDegrades(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		name     string
		analyzer Analyzer
		want     string
	}{
		{
			name:     "analyzer error",
			analyzer: &stubAnalyzer{err: errors.New("openai status 429")},
			want:     "analysis_status: skipped (openai status 429)",
		},
		{
			name:     "empty result",
			analyzer: &stubAnalyzer{},
			want:     "analysis_status: skipped (empty transcript)",
		},
		{
			name: "not configured",
			want: "analysis_status: skipped (analyzer not configured)",
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			out, err := NewRenderer(tc.analyzer).Render(context.Background(), []thread.Container{sampleIssue()}, RenderOptions{
				IncludeComments: true,
				IncludeAnalysis: true,
			})
			if err != nil {
				t.Fatalf("Render error = %v, want nil", err)
			}
			content := string(out)
			if !strings.Contains(content, "- "+tc.want) {
				t.Fatalf("metadata missing %q\n%s", tc.want, content)
			}
			if strings.Contains(content, "## Analysis") {
				t.Fatalf("analysis section should be absent\n%s", content)
			}
		})
	}
}

func TestRendererMultipleContainers(t *testing.T) {
	t.Parallel()

	out, err := NewRenderer(nil).Render(context.Background(), []thread.Container{sampleIssue(), samplePR()}, RenderOptions{
		IncludeComments: true,
		SourceURL:       "https://github.com/octo/repo",
	})
	if err != nil {
		t.Fatalf("Render error = %v, want nil", err)
	}
	content := string(out)

	for _, piece := range []string{
		"# Digest of 2 threads",
		"1. [Panic on nil config](https://github.com/octo/repo/issues/123) (issue, 3 comments)",
		"## 1. Panic on nil config",
		"### Metadata",
		"## 2. Fix nil config panic",
		"- Source URL: https://github.com/octo/repo\n",
		"- Original URL: https://github.com/octo/repo/pull/7\n",
	} {
		if !strings.Contains(content, piece) {
			t.Fatalf("missing %q\n%s", piece, content)
		}
	}
}

func TestRendererAnalysisPartsNote(t *testing.T) {
	t.Parallel()

	r := NewRenderer(&stubAnalyzer{result: analysis.Result{Markdown: "# Combined Analysis\n\n## Part 1 of 2\n\nx\n", Chunks: 2}})
	out, err := r.Render(context.Background(), []thread.Container{sampleIssue()}, RenderOptions{IncludeAnalysis: true, IncludeComments: true})
	if err != nil {
		t.Fatalf("Render error = %v, want nil", err)
	}
	content := string(out)
	for _, piece := range []string{"_Analyzed in 2 parts._", "### Combined Analysis", "#### Part 1 of 2", "analysis_chunks: 2"} {
		if !strings.Contains(content, piece) {
			t.Fatalf("missing %q\n%s", piece, content)
		}
	}
}

func TestRenderJSON(t *testing.T) {
	t.Parallel()

	out, err := NewRenderer(nil).Render(context.Background(), []thread.Container{sampleIssue()}, RenderOptions{Format: FormatJSON})
	if err != nil {
		t.Fatalf("Render error = %v, want nil", err)
	}

	var payload struct {
		Containers []thread.Container `json:"containers"`
	}
	if err := json.Unmarshal(out, &payload); err != nil {
		t.Fatalf("json.Unmarshal error = %v\n%s", err, out)
	}
	if len(payload.Containers) != 1 || payload.Containers[0].Title != "Panic on nil config" {
		t.Fatalf("payload = %+v", payload)
	}
	if len(payload.Containers[0].Comments) != 0 {
		t.Fatalf("comments should be dropped when IncludeComments=false, got %d", len(payload.Containers[0].Comments))
	}
}

func TestRenderTranscript(t *testing.T) {
	t.Parallel()

	out, err := NewRenderer(nil).Render(context.Background(), []thread.Container{sampleIssue()}, RenderOptions{Format: FormatTranscript, IncludeComments: true})
	if err != nil {
		t.Fatalf("Render error = %v, want nil", err)
	}
	if !strings.Contains(string(out), "  Comment by alice: Thanks, investigating.\n") {
		t.Fatalf("transcript missing indented reply:\n%s", out)
	}
}

func TestRenderRejectsBadInput(t *testing.T) {
	t.Parallel()

	r := NewRenderer(nil)
	if _, err := r.Render(context.Background(), nil, RenderOptions{}); err == nil {
		t.Fatal("Render(nil) error = nil, want error")
	}
	if _, err := r.Render(context.Background(), []thread.Container{sampleIssue()}, RenderOptions{Format: "pdf"}); err == nil {
		t.Fatal("Render(pdf) error = nil, want error")
	}
}
