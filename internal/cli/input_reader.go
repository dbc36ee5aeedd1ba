package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

// InputReader streams target URLs from a batch input file.
type InputReader interface {
	Read(ctx context.Context, path string, handle func(line string) error) error
}

type fileInputReader struct{}

// NewFileInputReader creates a streaming line-by-line input reader. Blank
// lines and lines starting with '#' are skipped.
func NewFileInputReader() InputReader {
	return &fileInputReader{}
}

func (r *fileInputReader) Read(ctx context.Context, path string, handle func(line string) error) (err error) {
	_ = r

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open input file %q: %w", path, err)
	}
	defer func() {
		closeErr := file.Close()
		if err == nil && closeErr != nil {
			err = fmt.Errorf("close input file %q: %w", path, closeErr)
		}
	}()

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("read input file %q at line %d: %w", path, lineNo, ctxErr)
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if handleErr := handle(line); handleErr != nil {
			return fmt.Errorf("process input line %d %q: %w", lineNo, line, handleErr)
		}
	}
	if scanErr := scanner.Err(); scanErr != nil {
		return fmt.Errorf("scan input file %q: %w", path, scanErr)
	}
	return nil
}
