package processor

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
)

// PunktDetector detects sentences with the Punkt model trained for English.
type PunktDetector struct {
	tokenizer *sentences.DefaultSentenceTokenizer
}

func NewPunktDetector() (*PunktDetector, error) {
	tokenizer, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load punkt model: %w", err)
	}
	return &PunktDetector{tokenizer: tokenizer}, nil
}

func (d *PunktDetector) Detect(text string) ([]string, error) {
	var out []string
	for _, s := range d.tokenizer.Tokenize(text) {
		if trimmed := strings.TrimSpace(s.Text); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out, nil
}

// RuleDetector splits on terminal punctuation followed by whitespace.
// Closing quotes and brackets stay with the sentence they end.
type RuleDetector struct{}

func (RuleDetector) Detect(text string) ([]string, error) {
	var sentences []string
	runes := []rune(text)
	start := 0

	for i := 0; i < len(runes); i++ {
		if !isTerminator(runes[i]) {
			continue
		}

		end := i + 1
		for end < len(runes) && isTerminator(runes[end]) {
			end++
		}
		for end < len(runes) && isCloser(runes[end]) {
			end++
		}
		if end < len(runes) && !unicode.IsSpace(runes[end]) {
			continue
		}

		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			sentences = append(sentences, s)
		}
		start = end
		i = end - 1
	}

	// Add any remaining text
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		sentences = append(sentences, s)
	}
	return sentences, nil
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’', '»':
		return true
	}
	return false
}
