package fetch

import (
	"errors"
	"os"
	"sync"
	"time"
)

var (
	ErrUnsupportedScheme = errors.New("only http/https URLs are supported")
	ErrFetchFailure      = errors.New("fetch failure")
	ErrInvalidAudio      = errors.New("audio content is empty or not decodable")
	ErrPayloadTooLarge   = errors.New("reference audio exceeds size limit")
)

// Config controls download limits and retry behaviour. Zero values fall
// back to the defaults applied in New.
type Config struct {
	Timeout         time.Duration
	Retries         uint64
	BackoffInitial  time.Duration
	MaxPayloadBytes int64
	TempDir         string

	// AllowTranscode enables an ffmpeg fallback for reference audio that
	// is neither WAV nor MP3.
	AllowTranscode bool
}

// Asset is a reference voice sample staged on disk for the lifetime of one
// request. Close removes the backing file and is safe to call repeatedly.
type Asset struct {
	Path       string
	SampleRate int
	Duration   time.Duration

	once sync.Once
}

func (a *Asset) Close() error {
	var err error
	a.once.Do(func() {
		err = os.Remove(a.Path)
	})
	return err
}
