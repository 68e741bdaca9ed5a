package speech

import (
	"context"
	"hash/fnv"
	"math/rand"
	"time"
	"unicode/utf8"
)

// StubSynthesizer produces deterministic pseudo-audio without a model. It
// backs the "stub" engine setting, used for smoke testing a deployment and
// throughout the test suite. Output depends only on the text and seed, so
// repeated runs are byte-identical.
type StubSynthesizer struct {
	Rate           int
	SamplesPerChar int

	// Delay simulates inference latency.
	Delay time.Duration

	// Err, when set, fails every call.
	Err error
}

func NewStubSynthesizer() *StubSynthesizer {
	return &StubSynthesizer{Rate: 24000, SamplesPerChar: 220}
}

func (s *StubSynthesizer) Synthesize(ctx context.Context, text, promptPath string, p Params) (*Clip, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.Delay):
		}
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64()) ^ p.Seed))

	speed := p.Speed
	if speed <= 0 {
		speed = 1.0
	}
	n := int(float64(utf8.RuneCountInString(text)*s.SamplesPerChar) / speed)
	if n < s.SamplesPerChar {
		n = s.SamplesPerChar
	}

	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(rng.Intn(20001) - 10000)
	}

	return &Clip{SampleRate: s.Rate, Samples: samples}, nil
}

func (s *StubSynthesizer) Healthy(ctx context.Context) error {
	return s.Err
}
