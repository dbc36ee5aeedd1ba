package converter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/johnqtcg/threaddigest/internal/analysis"
	"github.com/johnqtcg/threaddigest/internal/thread"
)

// Format selects the output encoding.
type Format string

const (
	FormatMarkdown   Format = "markdown"
	FormatJSON       Format = "json"
	FormatTranscript Format = "transcript"
)

// RenderOptions controls rendering behavior.
type RenderOptions struct {
	Format          Format
	IncludeComments bool
	IncludeAnalysis bool
	// SourceURL is the URL the containers were fetched from.
	SourceURL string
}

// Analyzer produces the analysis section from a transcript. *analysis.Driver
// satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (analysis.Result, error)
}

// Renderer converts normalized containers into the requested output format.
type Renderer interface {
	Render(ctx context.Context, containers []thread.Container, opts RenderOptions) ([]byte, error)
}

type renderer struct {
	analyzer Analyzer
}

// NewRenderer creates a renderer. analyzer may be nil when analysis is off.
func NewRenderer(analyzer Analyzer) Renderer {
	return &renderer{analyzer: analyzer}
}

func (r *renderer) Render(ctx context.Context, containers []thread.Container, opts RenderOptions) ([]byte, error) {
	switch opts.Format {
	case FormatJSON:
		return renderJSON(containers, opts)
	case FormatTranscript:
		return []byte(thread.Transcript(visible(containers, opts.IncludeComments))), nil
	case FormatMarkdown, "":
		return r.renderMarkdown(ctx, containers, opts)
	default:
		return nil, fmt.Errorf("render: unsupported format %q", opts.Format)
	}
}

func (r *renderer) renderMarkdown(ctx context.Context, containers []thread.Container, opts RenderOptions) ([]byte, error) {
	if len(containers) == 0 {
		return nil, fmt.Errorf("render markdown: no containers")
	}

	var (
		result         analysis.Result
		analysisStatus string
	)
	if opts.IncludeAnalysis {
		switch {
		case r.analyzer == nil:
			analysisStatus = "skipped (analyzer not configured)"
		default:
			got, err := r.analyzer.Analyze(ctx, thread.Transcript(visible(containers, opts.IncludeComments)))
			switch {
			case err != nil:
				analysisStatus = fmt.Sprintf("skipped (%s)", err.Error())
			case strings.TrimSpace(got.Markdown) == "":
				analysisStatus = "skipped (empty transcript)"
			default:
				result = got
			}
		}
	}

	fm, err := renderFrontMatter(containers, opts.SourceURL, analysisStatus, result.Chunks)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString(fm)

	single := len(containers) == 1
	if single {
		fmt.Fprintf(&b, "# %s\n\n", containers[0].Title)
	} else {
		fmt.Fprintf(&b, "# Digest of %d threads\n\n", len(containers))
		b.WriteString(renderDigestIndex(containers))
	}

	if result.Markdown != "" {
		b.WriteString("\n")
		b.WriteString(renderAnalysisSection(result))
	}

	for i, c := range containers {
		if single {
			b.WriteString(renderMetadataSection(c, "##", analysisStatus))
			b.WriteString(renderContainerBody(c, "##", opts.IncludeComments))
			continue
		}
		fmt.Fprintf(&b, "\n## %d. %s\n\n", i+1, c.Title)
		b.WriteString(renderMetadataSection(c, "###", ""))
		b.WriteString(renderContainerBody(c, "###", opts.IncludeComments))
	}

	b.WriteString("\n## References\n")
	if opts.SourceURL != "" && (!single || opts.SourceURL != containers[0].URL) {
		fmt.Fprintf(&b, "- Source URL: %s\n", opts.SourceURL)
	}
	for _, c := range containers {
		fmt.Fprintf(&b, "- Original URL: %s\n", c.URL)
	}

	return []byte(b.String()), nil
}

func renderJSON(containers []thread.Container, opts RenderOptions) ([]byte, error) {
	payload := struct {
		SourceURL  string             `json:"source_url,omitempty"`
		Containers []thread.Container `json:"containers"`
	}{SourceURL: opts.SourceURL, Containers: visible(containers, opts.IncludeComments)}
	if payload.Containers == nil {
		payload.Containers = []thread.Container{}
	}

	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render json: %w", err)
	}
	return append(out, '\n'), nil
}

// visible drops comments when they are excluded from the output. The input
// containers are not modified.
func visible(containers []thread.Container, includeComments bool) []thread.Container {
	if includeComments {
		return containers
	}
	out := make([]thread.Container, len(containers))
	for i, c := range containers {
		c.Comments = []thread.Comment{}
		out[i] = c
	}
	return out
}
