package cli

import (
	"context"
	"errors"
	"iter"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/johnqtcg/threaddigest/internal/analysis"
	"github.com/johnqtcg/threaddigest/internal/config"
	"github.com/johnqtcg/threaddigest/internal/converter"
	"github.com/johnqtcg/threaddigest/internal/source"
	"github.com/johnqtcg/threaddigest/internal/thread"
)

var nopLogger = zerolog.Nop()

type fakeLoader struct {
	cfg     config.Config
	err     error
	gotArgs []string
	gotLang string
}

func (f *fakeLoader) Load(flags *pflag.FlagSet, positional []string) (config.Config, error) {
	f.gotArgs = append([]string(nil), positional...)
	if lang := flags.Lookup("lang"); lang != nil {
		f.gotLang = lang.Value.String()
	}
	if f.err != nil {
		return config.Config{}, f.err
	}
	cfg := f.cfg
	cfg.Positional = append([]string(nil), positional...)
	return cfg, nil
}

type fakeParser struct {
	targetByURL map[string]source.Target
	errByURL    map[string]error
	gotURLs     []string
}

func (f *fakeParser) Parse(rawURL string) (source.Target, error) {
	f.gotURLs = append(f.gotURLs, rawURL)
	if err := f.errByURL[rawURL]; err != nil {
		return source.Target{}, err
	}
	target, ok := f.targetByURL[rawURL]
	if !ok {
		return source.Target{}, errors.New("unexpected URL")
	}
	return target, nil
}

type fakeFetcherFactory struct {
	fetcher *fakeFetcher
	err     error
}

func (f *fakeFetcherFactory) New(cfg config.Config, _ zerolog.Logger) (source.Fetcher, error) {
	_ = cfg
	if f.err != nil {
		return nil, f.err
	}
	return f.fetcher, nil
}

type fakeFetcher struct {
	containersByURL map[string][]thread.Container
	errByURL        map[string]error
	gotTargets      []source.Target
}

func (f *fakeFetcher) Fetch(_ context.Context, t source.Target) ([]thread.Container, error) {
	f.gotTargets = append(f.gotTargets, t)
	if err := f.errByURL[t.URL]; err != nil {
		return nil, err
	}
	containers, ok := f.containersByURL[t.URL]
	if !ok {
		return nil, errors.New("unexpected target")
	}
	return containers, nil
}

type fakeAnalyzerFactory struct {
	engine *fakeEngine
	calls  int
}

func (f *fakeAnalyzerFactory) New(config.Config, zerolog.Logger) AnalysisEngine {
	f.calls++
	if f.engine == nil {
		return nil
	}
	return f.engine
}

type fakeEngine struct {
	fragments []string
	err       error

	mu      sync.Mutex
	gotText string
}

func (f *fakeEngine) Analyze(_ context.Context, text string) (analysis.Result, error) {
	f.mu.Lock()
	f.gotText = text
	f.mu.Unlock()
	if f.err != nil {
		return analysis.Result{}, f.err
	}
	return analysis.Result{Markdown: analysis.Combine(f.fragments), Chunks: 1}, nil
}

func (f *fakeEngine) StreamAnalyze(_ context.Context, text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		f.mu.Lock()
		f.gotText = text
		f.mu.Unlock()
		if f.err != nil {
			yield("", f.err)
			return
		}
		for _, frag := range f.fragments {
			if !yield(frag, nil) {
				return
			}
		}
	}
}

type fakeRendererFactory struct {
	renderer    *fakeRenderer
	gotAnalyzer converter.Analyzer
}

func (f *fakeRendererFactory) New(cfg config.Config, analyzer converter.Analyzer) converter.Renderer {
	_ = cfg
	f.gotAnalyzer = analyzer
	return f.renderer
}

type fakeRenderer struct {
	out        []byte
	errByTitle map[string]error
	gotData    [][]thread.Container
	gotOpts    []converter.RenderOptions
}

func (f *fakeRenderer) Render(_ context.Context, containers []thread.Container, opts converter.RenderOptions) ([]byte, error) {
	f.gotData = append(f.gotData, containers)
	f.gotOpts = append(f.gotOpts, opts)
	if len(containers) > 0 {
		if err := f.errByTitle[containers[0].Title]; err != nil {
			return nil, err
		}
	}
	return f.out, nil
}

type fakeOutputWriter struct {
	path       string
	errByURL   map[string]error
	gotTargets []source.Target
	gotMode    []Mode
	gotContent [][]byte
}

func (f *fakeOutputWriter) Write(cfg config.Config, mode Mode, target source.Target, content []byte) (string, error) {
	_ = cfg
	f.gotTargets = append(f.gotTargets, target)
	f.gotMode = append(f.gotMode, mode)
	f.gotContent = append(f.gotContent, content)
	if err := f.errByURL[target.URL]; err != nil {
		return "", err
	}
	if f.path == "" {
		return outputPathStdout, nil
	}
	return f.path, nil
}

type fakeInputReader struct {
	lines   []string
	err     error
	gotPath string
}

func (f *fakeInputReader) Read(_ context.Context, path string, handle func(line string) error) error {
	f.gotPath = path
	if f.err != nil {
		return f.err
	}
	for _, line := range f.lines {
		if err := handle(line); err != nil {
			return err
		}
	}
	return nil
}

func issueContainer(title, url string, comments int) thread.Container {
	c := thread.Container{
		ID:     title,
		Source: thread.SourceGitHub,
		Kind:   thread.KindIssue,
		Title:  title,
		Author: "alice",
		Body:   "desc",
		URL:    url,
	}
	for i := range comments {
		c.Comments = append(c.Comments, thread.Comment{ID: title + "-c" + string(rune('a'+i)), Author: "bob", Content: "reply"})
	}
	return c
}

func githubTarget(url string, kind thread.Kind, number int) source.Target {
	return source.Target{
		Source: thread.SourceGitHub,
		Scope:  source.ScopeItem,
		Kind:   kind,
		URL:    url,
		Owner:  "octo",
		Repo:   "repo",
		Number: number,
	}
}
