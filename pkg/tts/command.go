package tts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/xhad/readaloud/internal/types"
)

const (
	outputPlaceholder = "{output}"
	voicePlaceholder  = "{voice}"
)

// CommandBackend runs a local TTS program per chunk. The chunk text is
// written to the program's stdin. When the argv has no {output} placeholder
// the program's stdout is taken as the audio.
type CommandBackend struct {
	argv  []string
	voice string
}

func NewCommandBackend(argv []string, voice string) *CommandBackend {
	return &CommandBackend{argv: append([]string(nil), argv...), voice: voice}
}

func (b *CommandBackend) Name() string {
	return BackendCommand
}

func (b *CommandBackend) Open(ctx context.Context) (types.SpeechEngine, error) {
	if len(b.argv) == 0 {
		return nil, fmt.Errorf("%w: empty speech command", types.ErrSynthesis)
	}
	bin, err := exec.LookPath(b.argv[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSynthesis, err)
	}
	return &commandEngine{bin: bin, args: b.argv[1:], voice: b.voice}, nil
}

type commandEngine struct {
	bin   string
	args  []string
	voice string
}

func (e *commandEngine) expandArgs(output string) ([]string, bool) {
	args := make([]string, len(e.args))
	toFile := false
	for i, a := range e.args {
		if strings.Contains(a, outputPlaceholder) {
			toFile = true
			a = strings.ReplaceAll(a, outputPlaceholder, output)
		}
		args[i] = strings.ReplaceAll(a, voicePlaceholder, e.voice)
	}
	return args, toFile
}

func (e *commandEngine) SynthesizeToFile(ctx context.Context, text, path string) error {
	args, toFile := e.expandArgs(path)

	cmd := exec.CommandContext(ctx, e.bin, args...)
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	var out *os.File
	if !toFile {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create audio file: %w", err)
		}
		defer f.Close()
		out = f
		cmd.Stdout = out
	}

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", filepath.Base(e.bin), err, msg)
		}
		return fmt.Errorf("%s: %w", filepath.Base(e.bin), err)
	}
	if out != nil {
		return out.Close()
	}
	return nil
}

func (e *commandEngine) Synthesize(ctx context.Context, text string) ([]byte, error) {
	tmp := filepath.Join(os.TempDir(), "readaloud-"+uuid.NewString())
	defer os.Remove(tmp)

	if err := e.SynthesizeToFile(ctx, text, tmp); err != nil {
		return nil, err
	}
	return os.ReadFile(tmp)
}

func (e *commandEngine) Close() error {
	return nil
}
