// Package analysis feeds transcripts through a size-bounded analyzer,
// splitting oversized input into chunks and recombining the results.
package analysis

import (
	"slices"
	"strings"
	"unicode/utf8"
)

// DefaultBudget is the per-request input size, in runes.
const DefaultBudget = 350_000

// Chunk is one budget-bounded slice of the input.
type Chunk struct {
	Text          string
	SequenceIndex int
	// Continuation is set when the chunk starts in the middle of a line that
	// was hard split at the budget boundary.
	Continuation bool
}

// Split packs whole lines greedily into chunks of at most budget runes,
// counting the newlines between lines of the same chunk. The newline that
// separates two chunks belongs to neither. A line longer than the budget is
// cut every budget runes, even mid-word. Join reverses Split exactly.
func Split(text string, budget int) []Chunk {
	if budget <= 0 {
		budget = DefaultBudget
	}
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= budget {
		return []Chunk{{Text: text}}
	}

	var (
		chunks []Chunk
		cur    strings.Builder
		curLen int
		// open is set once cur holds a line, which may be empty.
		open   bool
		cont   bool
	)
	flush := func() {
		if !open {
			return
		}
		chunks = append(chunks, Chunk{Text: cur.String(), SequenceIndex: len(chunks), Continuation: cont})
		cur.Reset()
		curLen = 0
		open = false
		cont = false
	}
	add := func(line string, n int) {
		if open {
			cur.WriteByte('\n')
			curLen++
		}
		cur.WriteString(line)
		curLen += n
		open = true
	}

	for _, line := range strings.Split(text, "\n") {
		n := utf8.RuneCountInString(line)
		cost := n
		if open {
			cost++
		}
		if curLen+cost <= budget {
			add(line, n)
			continue
		}
		flush()
		if n <= budget {
			add(line, n)
			continue
		}

		runes := []rune(line)
		for start := 0; start < len(runes); start += budget {
			end := min(start+budget, len(runes))
			cur.WriteString(string(runes[start:end]))
			curLen = end - start
			open = true
			cont = start > 0
			if end < len(runes) {
				flush()
			}
		}
	}
	flush()
	return chunks
}

// Join reassembles chunks in SequenceIndex order, restoring the newline
// between chunks that start on a fresh line.
func Join(chunks []Chunk) string {
	ordered := slices.Clone(chunks)
	slices.SortStableFunc(ordered, func(a, b Chunk) int { return a.SequenceIndex - b.SequenceIndex })

	var b strings.Builder
	for i, c := range ordered {
		if i > 0 && !c.Continuation {
			b.WriteByte('\n')
		}
		b.WriteString(c.Text)
	}
	return b.String()
}
