package processor

import (
	"fmt"
	"strings"

	"github.com/xhad/readaloud/internal/types"
)

// SentencesPerChunk is the number of sentences grouped into one audio chunk.
const SentencesPerChunk = 3

const (
	DetectorPunkt = "punkt"
	DetectorRules = "rules"
)

type ProcessorConfig struct {
	Detector string
}

type Processor struct {
	config   ProcessorConfig
	detector types.SentenceDetector
	initErr  error
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.Detector == "" {
		config.Detector = DetectorPunkt
	}

	p := Processor{config: config}
	switch config.Detector {
	case DetectorPunkt:
		p.detector, p.initErr = NewPunktDetector()
	case DetectorRules:
		p.detector = RuleDetector{}
	default:
		p.initErr = fmt.Errorf("unknown sentence detector %q", config.Detector)
	}
	return p
}

// NewWithDetector builds a processor around an already constructed detector.
func NewWithDetector(detector types.SentenceDetector) Processor {
	return Processor{detector: detector}
}

// Segment splits body text into ordered chunks of SentencesPerChunk sentences.
// The final chunk holds the remaining one or two sentences. A body without
// sentences yields no chunks.
func (p *Processor) Segment(body string) ([]string, error) {
	sentences, err := p.Sentences(body)
	if err != nil {
		return nil, err
	}

	chunks := make([]string, 0, (len(sentences)+SentencesPerChunk-1)/SentencesPerChunk)
	for start := 0; start < len(sentences); start += SentencesPerChunk {
		end := start + SentencesPerChunk
		if end > len(sentences) {
			end = len(sentences)
		}
		chunks = append(chunks, strings.Join(sentences[start:end], " "))
	}
	return chunks, nil
}

// Sentences returns the non-empty sentences of body in order.
func (p *Processor) Sentences(body string) ([]string, error) {
	if p.initErr != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSegmentation, p.initErr)
	}
	if p.detector == nil {
		return nil, fmt.Errorf("%w: no sentence detector configured", types.ErrSegmentation)
	}

	// The detector sees the whole body as one run of text, so a heading
	// without terminal punctuation joins the sentence that follows it.
	text := strings.Join(strings.Fields(body), " ")
	if text == "" {
		return nil, nil
	}
	detected, err := p.detector.Detect(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSegmentation, err)
	}

	var sentences []string
	for _, s := range detected {
		s = strings.Join(strings.Fields(s), " ")
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences, nil
}
