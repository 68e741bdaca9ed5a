package speech

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"timbre/internal/audio"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrTextTooLong       = errors.New("text too long")
	ErrSynthesis         = errors.New("synthesis error")
	ErrNoAudio           = errors.New("no audio data produced")
	ErrEngineUnavailable = errors.New("synthesis engine unavailable")
)

type Mode string

const (
	ModeStandard Mode = "standard"
	ModeBatch    Mode = "batch"
)

// Request is the JSON body of a synthesis call. Sampling parameters mirror
// the model's generation knobs and are passed through untouched.
type Request struct {
	Text      string `json:"text" binding:"required"`
	PromptURL string `json:"prompt_url" binding:"required"`
	Mode      Mode   `json:"infer_mode"`

	MaxTextTokensPerSentence int   `json:"max_text_tokens_per_sentence"`
	SentencesBucketMaxSize   int   `json:"sentences_bucket_max_size"`
	MaxChunkChars            int   `json:"max_chunk_chars"`
	DoSample                 *bool `json:"do_sample"`

	TopP              float64 `json:"top_p"`
	TopK              int     `json:"top_k"`
	Temperature       float64 `json:"temperature"`
	LengthPenalty     float64 `json:"length_penalty"`
	NumBeams          int     `json:"num_beams"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
	MaxMelTokens      int     `json:"max_mel_tokens"`
	Seed              int64   `json:"seed"`
	Speed             float64 `json:"speed"`
}

// Params is the engine-facing subset of a request.
type Params struct {
	MaxTextTokensPerSentence int
	SentencesBucketMaxSize   int
	DoSample                 bool
	TopP                     float64
	TopK                     int
	Temperature              float64
	LengthPenalty            float64
	NumBeams                 int
	RepetitionPenalty        float64
	MaxMelTokens             int
	Seed                     int64
	Speed                    float64
}

func (r *Request) SetRequestDefaults() {
	if r.Mode == "" {
		r.Mode = ModeStandard
	}
	if r.MaxTextTokensPerSentence == 0 {
		r.MaxTextTokensPerSentence = 120
	}
	if r.SentencesBucketMaxSize == 0 {
		r.SentencesBucketMaxSize = 4
	}
	if r.DoSample == nil {
		v := true
		r.DoSample = &v
	}
	if r.TopP == 0 {
		r.TopP = 0.8
	}
	if r.TopK == 0 {
		r.TopK = 30
	}
	if r.Temperature == 0 {
		r.Temperature = 1.0
	}
	if r.NumBeams == 0 {
		r.NumBeams = 3
	}
	if r.RepetitionPenalty == 0 {
		r.RepetitionPenalty = 10.0
	}
	if r.MaxMelTokens == 0 {
		r.MaxMelTokens = 600
	}
	if r.Speed == 0 {
		r.Speed = 1.0
	}
}

func (r *Request) Params() Params {
	return Params{
		MaxTextTokensPerSentence: r.MaxTextTokensPerSentence,
		SentencesBucketMaxSize:   r.SentencesBucketMaxSize,
		DoSample:                 r.DoSample == nil || *r.DoSample,
		TopP:                     r.TopP,
		TopK:                     r.TopK,
		Temperature:              r.Temperature,
		LengthPenalty:            r.LengthPenalty,
		NumBeams:                 r.NumBeams,
		RepetitionPenalty:        r.RepetitionPenalty,
		MaxMelTokens:             r.MaxMelTokens,
		Seed:                     r.Seed,
		Speed:                    r.Speed,
	}
}

func (r *Request) validate(maxTextChars int) error {
	var errs []error

	if strings.TrimSpace(r.Text) == "" {
		errs = append(errs, errors.Join(ErrInvalidInput, errors.New("text cannot be empty")))
	}
	if maxTextChars > 0 && utf8.RuneCountInString(r.Text) > maxTextChars {
		errs = append(errs, errors.Join(ErrTextTooLong,
			fmt.Errorf("text has %d characters, limit is %d", utf8.RuneCountInString(r.Text), maxTextChars)))
	}
	if r.Mode != ModeStandard && r.Mode != ModeBatch {
		errs = append(errs, errors.Join(ErrInvalidInput,
			fmt.Errorf("infer_mode must be %q or %q", ModeStandard, ModeBatch)))
	}
	if r.TopP < 0 || r.TopP > 1 {
		errs = append(errs, errors.Join(ErrInvalidInput, errors.New("top_p must be between 0.0 and 1.0")))
	}
	if r.TopK < 0 {
		errs = append(errs, errors.Join(ErrInvalidInput, errors.New("top_k must be non-negative")))
	}
	if r.Temperature < 0 {
		errs = append(errs, errors.Join(ErrInvalidInput, errors.New("temperature must be non-negative")))
	}
	if r.NumBeams < 1 {
		errs = append(errs, errors.Join(ErrInvalidInput, errors.New("num_beams must be at least 1")))
	}
	if r.RepetitionPenalty < 1 {
		errs = append(errs, errors.Join(ErrInvalidInput, errors.New("repetition_penalty must be at least 1.0")))
	}
	if r.MaxMelTokens < 1 {
		errs = append(errs, errors.Join(ErrInvalidInput, errors.New("max_mel_tokens must be positive")))
	}
	if r.Speed <= 0 || r.Speed > 3 {
		errs = append(errs, errors.Join(ErrInvalidInput, errors.New("speed must be in (0, 3]")))
	}
	if r.MaxChunkChars < 0 {
		errs = append(errs, errors.Join(ErrInvalidInput, errors.New("max_chunk_chars must be non-negative")))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Result is a complete synthesized waveform, owned by the request until it
// is streamed out.
type Result struct {
	SampleRate int
	Samples    []int16
	Mode       Mode
}

// WAV encodes the waveform for the response body.
func (r *Result) WAV() []byte {
	return audio.EncodeWAV(r.Samples, r.SampleRate)
}

func (r *Result) Duration() time.Duration {
	if r.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(r.Samples)) * time.Second / time.Duration(r.SampleRate)
}
