// Package parser extracts card content from markdown files using the
// Q:/A:/C: line convention. A new Q: or a "---" separator starts a new card.
package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/ciaranmul/recollect/internal/domain"
)

const separator = "---"

// field identifies which card field a block of lines belongs to.
type field int

const (
	none field = iota
	question
	answer
	context
)

var prefixes = []struct {
	prefix string
	f      field
}{
	{"Q:", question},
	{"A:", answer},
	{"C:", context},
}

func fieldFor(line string) (field, string, bool) {
	for _, p := range prefixes {
		if rest, ok := strings.CutPrefix(line, p.prefix); ok {
			return p.f, strings.TrimPrefix(rest, " "), true
		}
	}
	return none, "", false
}

// ParseFile reads the file at path and extracts all cards from it.
func ParseFile(path string) ([]domain.CardContent, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Parse(file)
}

// Parse extracts all cards from r. Lines outside any field are ignored;
// lines following a field marker are appended to that field until the next
// marker or separator. Cards without a question are dropped.
func Parse(r io.Reader) ([]domain.CardContent, error) {
	var (
		cards   []domain.CardContent
		current domain.CardContent
		block   []string
		active  field
	)

	flushBlock := func() {
		if active == none || len(block) == 0 {
			block = nil
			return
		}
		content := strings.Join(block, "\n")
		switch active {
		case question:
			current.Question = content
		case answer:
			current.Answer = content
		case context:
			current.Context = content
		}
		block = nil
	}

	flushCard := func() {
		flushBlock()
		if current.Question != "" {
			cards = append(cards, current)
		}
		current = domain.CardContent{}
		active = none
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()

		if line == separator {
			flushCard()
			continue
		}

		if f, rest, ok := fieldFor(line); ok {
			flushBlock()
			if f == question && active != none {
				flushCard()
			}
			active = f
			block = append(block, rest)
			continue
		}

		if active != none {
			block = append(block, line)
		}
	}
	flushCard()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cards, nil
}
