package speech

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/mattn/go-shellwords"

	"timbre/internal/audio"
)

// ExecSynthesizer invokes the model through a local inference binary. The
// configured command is a template; text, prompt path, generation
// parameters and a temporary output path are appended per call.
type ExecSynthesizer struct {
	argv []string
}

func NewExecSynthesizer(command string) (*ExecSynthesizer, error) {
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse engine command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("engine command is empty")
	}
	return &ExecSynthesizer{argv: args}, nil
}

func (e *ExecSynthesizer) Synthesize(ctx context.Context, text, promptPath string, p Params) (*Clip, error) {
	out, err := os.CreateTemp("", "timbre-out-*.wav")
	if err != nil {
		return nil, errors.Join(ErrSynthesis, fmt.Errorf("create output file: %w", err))
	}
	outPath := out.Name()
	out.Close()
	defer os.Remove(outPath)

	args := append(append([]string{}, e.argv[1:]...),
		"--text", text,
		"--prompt", promptPath,
		"--output", outPath,
		"--seed", strconv.FormatInt(p.Seed, 10),
		"--top-p", strconv.FormatFloat(p.TopP, 'f', 2, 64),
		"--top-k", strconv.Itoa(p.TopK),
		"--temperature", strconv.FormatFloat(p.Temperature, 'f', 2, 64),
		"--num-beams", strconv.Itoa(p.NumBeams),
		"--repetition-penalty", strconv.FormatFloat(p.RepetitionPenalty, 'f', 2, 64),
		"--max-mel-tokens", strconv.Itoa(p.MaxMelTokens),
	)

	cmd := exec.CommandContext(ctx, e.argv[0], args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, errors.Join(ErrSynthesis,
			fmt.Errorf("inference binary failed: %w - output: %s", err, output))
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, errors.Join(ErrSynthesis, fmt.Errorf("read output file: %w", err))
	}

	samples, rate, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, errors.Join(ErrNoAudio, err)
	}
	return &Clip{SampleRate: rate, Samples: samples}, nil
}

func (e *ExecSynthesizer) Healthy(ctx context.Context) error {
	if _, err := exec.LookPath(e.argv[0]); err != nil {
		return errors.Join(ErrEngineUnavailable, err)
	}
	return nil
}
