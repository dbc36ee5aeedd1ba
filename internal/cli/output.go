package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"github.com/johnqtcg/threaddigest/internal/config"
	"github.com/johnqtcg/threaddigest/internal/converter"
	"github.com/johnqtcg/threaddigest/internal/source"
	"github.com/johnqtcg/threaddigest/internal/thread"
)

// ErrOutputConflict indicates the output file already exists and force mode is disabled.
var ErrOutputConflict = errors.New("output file already exists")

const (
	outputPathStdout = "stdout"
	defaultWrapWidth = 100
)

// OutputWriter writes rendered output to stdout or the filesystem.
type OutputWriter interface {
	Write(cfg config.Config, mode Mode, target source.Target, content []byte) (string, error)
}

type fileOutputWriter struct {
	stdout io.Writer
	// terminalWidth reports the width of w when it is an interactive terminal.
	terminalWidth func(w io.Writer) (int, bool)
}

// NewOutputWriter creates an output writer with the provided stdout sink.
func NewOutputWriter(stdout io.Writer) OutputWriter {
	return &fileOutputWriter{stdout: stdout, terminalWidth: terminalWidth}
}

func (w *fileOutputWriter) Write(cfg config.Config, mode Mode, target source.Target, content []byte) (string, error) {
	if cfg.Stdout {
		if cfg.Pretty && isMarkdown(cfg) {
			if width, ok := w.terminalWidth(w.stdout); ok {
				rendered, err := renderPretty(content, width)
				if err != nil {
					return "", fmt.Errorf("render for terminal: %w", err)
				}
				content = rendered
			}
		}
		if _, err := w.stdout.Write(content); err != nil {
			return "", fmt.Errorf("write output to stdout: %w", err)
		}
		return outputPathStdout, nil
	}

	targetPath, err := resolveOutputPath(cfg, mode, target)
	if err != nil {
		return "", fmt.Errorf("resolve output path: %w", err)
	}

	if err := ensureWritable(targetPath, cfg.Force); err != nil {
		return "", fmt.Errorf("validate output path %q: %w", targetPath, err)
	}

	parentDir := filepath.Dir(targetPath)
	if err := os.MkdirAll(parentDir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory %q: %w", parentDir, err)
	}

	if err := os.WriteFile(targetPath, content, 0o644); err != nil {
		return "", fmt.Errorf("write output file %q: %w", targetPath, err)
	}
	return targetPath, nil
}

func renderPretty(markdown []byte, width int) ([]byte, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(max(width-4, 40)),
	)
	if err != nil {
		return nil, err
	}
	out, err := r.RenderBytes(markdown)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func terminalWidth(w io.Writer) (int, bool) {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0, false
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return defaultWrapWidth, true
	}
	return width, true
}

func resolveOutputPath(cfg config.Config, mode Mode, target source.Target) (string, error) {
	ext := fileExtension(cfg.Format)
	defaultName, err := defaultFileName(target, ext)
	if err != nil {
		return "", fmt.Errorf("build default file name: %w", err)
	}

	if mode == ModeBatch {
		if cfg.OutputPath == "" {
			return "", fmt.Errorf("batch output path is empty")
		}
		return filepath.Join(cfg.OutputPath, defaultName), nil
	}

	if cfg.OutputPath == "" {
		return defaultName, nil
	}

	info, err := os.Stat(cfg.OutputPath)
	switch {
	case err == nil && info.IsDir():
		return filepath.Join(cfg.OutputPath, defaultName), nil
	case err == nil:
		return cfg.OutputPath, nil
	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("stat output path %q: %w", cfg.OutputPath, err)
	}

	if strings.EqualFold(filepath.Ext(cfg.OutputPath), ext) {
		return cfg.OutputPath, nil
	}
	return filepath.Join(cfg.OutputPath, defaultName), nil
}

func fileExtension(format string) string {
	switch converter.Format(format) {
	case converter.FormatJSON:
		return ".json"
	case converter.FormatTranscript:
		return ".txt"
	default:
		return ".md"
	}
}

func defaultFileName(t source.Target, ext string) (string, error) {
	var base string
	switch t.Source {
	case thread.SourceGitHub:
		if t.Scope == source.ScopeListing {
			base = fmt.Sprintf("%s-%s-digest", t.Owner, t.Repo)
			break
		}
		var kind string
		switch t.Kind {
		case thread.KindIssue:
			kind = "issue"
		case thread.KindPullRequest:
			kind = "pr"
		case thread.KindDiscussion:
			kind = "discussion"
		default:
			return "", fmt.Errorf("unsupported github kind %q", t.Kind)
		}
		base = fmt.Sprintf("%s-%s-%s-%d", t.Owner, t.Repo, kind, t.Number)
	case thread.SourceReddit:
		if t.Scope == source.ScopeListing {
			base = "reddit-r-" + t.Community
			break
		}
		base = "reddit-" + t.ID
	case thread.SourceBluesky:
		base = fmt.Sprintf("bluesky-%s-%s", t.Handle, t.ID)
	case thread.SourceHackerNews, thread.SourceYouTube:
		base = fmt.Sprintf("%s-%s", t.Source, t.ID)
	default:
		return "", fmt.Errorf("unsupported source %q", t.Source)
	}
	return sanitizeFileName(base) + ext, nil
}

// sanitizeFileName keeps letters, digits, '.', '_' and '-'.
func sanitizeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		default:
			return '-'
		}
	}, name)
}

func ensureWritable(path string, force bool) error {
	_, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat output file: %w", err)
	}
	if !force {
		return ErrOutputConflict
	}
	return nil
}
