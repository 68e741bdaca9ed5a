package speech

import "context"

// Clip is one synthesized waveform segment, mono 16-bit PCM.
type Clip struct {
	SampleRate int
	Samples    []int16
}

// Synthesizer is the loaded voice-cloning model, an opaque capability that
// turns text plus a reference voice sample into a waveform. Implementations
// are not assumed to tolerate unbounded concurrent calls; admission control
// happens upstream, never here.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, promptPath string, p Params) (*Clip, error)
	Healthy(ctx context.Context) error
}
