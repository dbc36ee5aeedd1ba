package analysis

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/johnqtcg/threaddigest/internal/paging"
)

const (
	// DefaultFragmentSize is the streamed fragment length, in runes.
	DefaultFragmentSize = 32
	// DefaultFragmentDelay separates streamed fragments.
	DefaultFragmentDelay = 15 * time.Millisecond
)

// Analyzer is the text-in, text-out inference service.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (string, error)
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc func(ctx context.Context, text string) (string, error)

// Analyze calls f.
func (f AnalyzerFunc) Analyze(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

// Config configures a Driver. Zero values fall back to package defaults.
type Config struct {
	Budget        int
	Concurrency   int
	FragmentSize  int
	FragmentDelay time.Duration
	Sleep         paging.SleepFunc
	Logger        *zerolog.Logger
}

// Result is a completed analysis.
type Result struct {
	Markdown string
	Chunks   int
}

// Driver runs an Analyzer over inputs of any size.
type Driver struct {
	analyzer      Analyzer
	budget        int
	concurrency   int
	fragmentSize  int
	fragmentDelay time.Duration
	sleep         paging.SleepFunc
	log           zerolog.Logger
}

// NewDriver builds a Driver around analyzer.
func NewDriver(analyzer Analyzer, cfg Config) *Driver {
	d := &Driver{
		analyzer:      analyzer,
		budget:        cfg.Budget,
		concurrency:   cfg.Concurrency,
		fragmentSize:  cfg.FragmentSize,
		fragmentDelay: cfg.FragmentDelay,
		sleep:         cfg.Sleep,
		log:           zerolog.Nop(),
	}
	if d.budget <= 0 {
		d.budget = DefaultBudget
	}
	if d.concurrency <= 0 {
		d.concurrency = 1
	}
	if d.fragmentSize <= 0 {
		d.fragmentSize = DefaultFragmentSize
	}
	if d.fragmentDelay < 0 {
		d.fragmentDelay = 0
	}
	if d.sleep == nil {
		d.sleep = paging.SleepContext
	}
	if cfg.Logger != nil {
		d.log = *cfg.Logger
	}
	return d
}

// Analyze splits text under the budget, analyzes every chunk and combines the
// outputs. Input size never causes an error.
func (d *Driver) Analyze(ctx context.Context, text string) (Result, error) {
	if d == nil || d.analyzer == nil {
		return Result{}, fmt.Errorf("analyzer is not configured")
	}

	chunks := Split(text, d.budget)
	if len(chunks) == 0 {
		return Result{}, nil
	}
	d.log.Info().Int("chunks", len(chunks)).Int("runes", utf8.RuneCountInString(text)).Int("budget", d.budget).Msg("analyzing transcript")

	outputs := make([]string, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for _, c := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := d.analyzer.Analyze(gctx, c.Text)
			if err != nil {
				return fmt.Errorf("analyze chunk %d of %d: %w", c.SequenceIndex+1, len(chunks), err)
			}
			outputs[c.SequenceIndex] = out
			d.log.Debug().Int("chunk", c.SequenceIndex).Msg("chunk analyzed")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	return Result{Markdown: Combine(outputs), Chunks: len(chunks)}, nil
}

// StreamAnalyze runs Analyze and yields the result as display fragments,
// pausing between fragments. A failure is yielded once as the error value.
func (d *Driver) StreamAnalyze(ctx context.Context, text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		res, err := d.Analyze(ctx, text)
		if err != nil {
			yield("", err)
			return
		}
		for i, frag := range Fragments(res.Markdown, d.fragmentSize) {
			if i > 0 && d.fragmentDelay > 0 {
				if err := d.sleep(ctx, d.fragmentDelay); err != nil {
					yield("", fmt.Errorf("stream analysis: %w", err))
					return
				}
			}
			if !yield(frag, nil) {
				return
			}
		}
	}
}

// Combine merges per-chunk outputs. A single output is returned unchanged.
func Combine(outputs []string) string {
	switch len(outputs) {
	case 0:
		return ""
	case 1:
		return outputs[0]
	}

	n := len(outputs)
	var b strings.Builder
	b.WriteString("# Combined Analysis\n\n")
	fmt.Fprintf(&b, "The transcript exceeded the analysis size limit and was analyzed in %d parts.\n", n)
	for i, out := range outputs {
		fmt.Fprintf(&b, "\n## Part %d of %d\n\n", i+1, n)
		b.WriteString(strings.TrimSpace(out))
		b.WriteString("\n")
	}
	return b.String()
}

// Fragments cuts text into pieces of at most size runes.
func Fragments(text string, size int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = DefaultFragmentSize
	}

	runes := []rune(text)
	out := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		out = append(out, string(runes[start:min(start+size, len(runes))]))
	}
	return out
}
