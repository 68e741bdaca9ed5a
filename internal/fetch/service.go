// Package fetch retrieves a reference voice sample over HTTP into
// request-scoped temporary storage and validates that it decodes as audio.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"timbre/internal/audio"
)

const (
	userAgent    = "timbre/1.0"
	minAudioSize = 16
)

type Fetcher struct {
	cfg    Config
	client *http.Client
	logger *zap.SugaredLogger
}

func New(cfg Config, logger *zap.SugaredLogger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 500 * time.Millisecond
	}
	if cfg.MaxPayloadBytes <= 0 {
		cfg.MaxPayloadBytes = 32 << 20
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}

	return &Fetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Fetch downloads the reference audio at rawURL, retrying transient
// failures up to the configured budget, and stages it as a WAV file. The
// caller owns the returned asset and must Close it on every exit path.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Asset, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, errors.Join(ErrUnsupportedScheme, fmt.Errorf("scheme %q", schemeOf(u)))
	}

	var data []byte
	var contentType string

	operation := func() error {
		var opErr error
		data, contentType, opErr = f.download(ctx, rawURL)
		return opErr
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(f.newBackoff(), f.cfg.Retries),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	return f.stage(ctx, data, contentType, rawURL)
}

func (f *Fetcher) newBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.cfg.BackoffInitial
	return b
}

func (f *Fetcher) download(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", backoff.Permanent(errors.Join(ErrFetchFailure, err))
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		// Network-level failures are the retryable class.
		return nil, "", errors.Join(ErrFetchFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		wrapped := errors.Join(ErrFetchFailure, fmt.Errorf("fetch audio failed: status %d", resp.StatusCode))
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return nil, "", wrapped
		}
		return nil, "", backoff.Permanent(wrapped)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxPayloadBytes+1))
	if err != nil {
		return nil, "", errors.Join(ErrFetchFailure, err)
	}
	if int64(len(data)) > f.cfg.MaxPayloadBytes {
		return nil, "", backoff.Permanent(errors.Join(ErrPayloadTooLarge,
			fmt.Errorf("limit %d bytes", f.cfg.MaxPayloadBytes)))
	}
	if len(data) < minAudioSize {
		return nil, "", backoff.Permanent(errors.Join(ErrInvalidAudio,
			fmt.Errorf("got %d bytes", len(data))))
	}

	return data, resp.Header.Get("Content-Type"), nil
}

// stage validates the downloaded bytes and writes them to a temporary WAV
// file owned by the request.
func (f *Fetcher) stage(ctx context.Context, data []byte, contentType, rawURL string) (*Asset, error) {
	switch {
	case isWAV(data):
		info, err := audio.ProbeWAV(data)
		if err != nil {
			return nil, errors.Join(ErrInvalidAudio, err)
		}
		path, err := f.writeTemp(data, ".wav")
		if err != nil {
			return nil, err
		}
		return &Asset{Path: path, SampleRate: info.SampleRate, Duration: info.Duration}, nil

	case isMP3(data, contentType):
		samples, rate, err := audio.DecodeMP3(data)
		if err != nil {
			return nil, errors.Join(ErrInvalidAudio, err)
		}
		path, err := f.writeTemp(audio.EncodeWAV(samples, rate), ".wav")
		if err != nil {
			return nil, err
		}
		dur := time.Duration(len(samples)) * time.Second / time.Duration(rate)
		return &Asset{Path: path, SampleRate: rate, Duration: dur}, nil

	case f.cfg.AllowTranscode && ffmpegAvailable():
		return f.transcode(ctx, data, contentType, rawURL)

	default:
		return nil, errors.Join(ErrInvalidAudio, fmt.Errorf("unrecognized format %q", contentType))
	}
}

func schemeOf(u *url.URL) string {
	if u == nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}
