// Package speech dispatches synthesis requests to the underlying model:
// a single pass for short text, or chunked batch synthesis with
// concatenated output for long text.
package speech

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"timbre/internal/audio"
)

// chunkCeilingFactor bounds a single batch chunk relative to the chunk
// size. A chunk this long means the text had no usable sentence or clause
// boundary; it is rejected instead of silently truncated.
const chunkCeilingFactor = 4

type Config struct {
	MaxTextChars  int
	ChunkMaxChars int
}

type Service struct {
	cfg    Config
	synth  Synthesizer
	logger *zap.SugaredLogger
}

func NewService(cfg Config, synth Synthesizer, logger *zap.SugaredLogger) *Service {
	if cfg.MaxTextChars <= 0 {
		cfg.MaxTextChars = 5000
	}
	if cfg.ChunkMaxChars <= 0 {
		cfg.ChunkMaxChars = 240
	}
	return &Service{cfg: cfg, synth: synth, logger: logger}
}

// ValidateRequest applies defaults and checks the request against the
// configured limits. It must pass before any resource is acquired.
func (s *Service) ValidateRequest(req *Request) error {
	req.SetRequestDefaults()
	if req.MaxChunkChars == 0 {
		req.MaxChunkChars = s.cfg.ChunkMaxChars
	}
	return req.validate(s.cfg.MaxTextChars)
}

// Synthesize runs the request against the model using the strategy selected
// by its mode. The caller already holds an inference slot.
func (s *Service) Synthesize(ctx context.Context, requestID string, req *Request, promptPath string) (*Result, error) {
	start := time.Now()

	var (
		result *Result
		err    error
	)
	switch req.Mode {
	case ModeBatch:
		result, err = s.synthesizeBatch(ctx, req, promptPath)
	default:
		result, err = s.synthesizeStandard(ctx, req, promptPath)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Infow("synthesis complete",
		"request_id", requestID,
		"mode", req.Mode,
		"text_chars", utf8.RuneCountInString(req.Text),
		"audio_duration", result.Duration(),
		"sample_rate", result.SampleRate,
		"elapsed", time.Since(start),
	)
	return result, nil
}

func (s *Service) synthesizeStandard(ctx context.Context, req *Request, promptPath string) (*Result, error) {
	clip, err := s.synth.Synthesize(ctx, req.Text, promptPath, req.Params())
	if err != nil {
		return nil, classify(err)
	}
	if clip == nil || len(clip.Samples) == 0 {
		return nil, ErrNoAudio
	}
	return &Result{SampleRate: clip.SampleRate, Samples: clip.Samples, Mode: ModeStandard}, nil
}

// synthesizeBatch splits the text at sentence boundaries, synthesizes each
// chunk against the same reference voice, and joins the clips in order.
// Any chunk failure aborts the whole request; partial audio is never
// returned as if it were complete.
func (s *Service) synthesizeBatch(ctx context.Context, req *Request, promptPath string) (*Result, error) {
	chunks := SplitText(req.Text, req.MaxChunkChars)
	if len(chunks) == 0 {
		return nil, ErrNoAudio
	}

	ceiling := req.MaxChunkChars * chunkCeilingFactor
	params := req.Params()

	var (
		clips [][]int16
		rate  int
	)
	for i, chunk := range chunks {
		if n := utf8.RuneCountInString(chunk); n > ceiling {
			return nil, errors.Join(ErrTextTooLong,
				fmt.Errorf("chunk %d has %d characters with no split point, ceiling is %d", i+1, n, ceiling))
		}

		clip, err := s.synth.Synthesize(ctx, chunk, promptPath, params)
		if err != nil {
			return nil, classify(fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err))
		}
		if clip == nil || len(clip.Samples) == 0 {
			continue
		}
		if rate == 0 {
			rate = clip.SampleRate
		} else if clip.SampleRate != rate {
			return nil, errors.Join(ErrSynthesis,
				fmt.Errorf("chunk %d sample rate %d differs from %d", i+1, clip.SampleRate, rate))
		}
		clips = append(clips, clip.Samples)
	}

	joined := audio.Join(clips, rate)
	if len(joined) == 0 {
		return nil, ErrNoAudio
	}
	return &Result{SampleRate: rate, Samples: joined, Mode: ModeBatch}, nil
}

// classify folds engine failures into the package error taxonomy while
// preserving already-classified sentinels.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrSynthesis),
		errors.Is(err, ErrNoAudio),
		errors.Is(err, ErrEngineUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return errors.Join(ErrSynthesis, err)
	}
}
