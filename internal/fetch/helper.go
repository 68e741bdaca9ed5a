package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"os"
	"os/exec"
	"path"
	"strings"

	"timbre/internal/audio"
)

func isWAV(data []byte) bool {
	return len(data) > 12 && bytes.HasPrefix(data, []byte("RIFF")) &&
		bytes.Equal(data[8:12], []byte("WAVE"))
}

func isMP3(data []byte, contentType string) bool {
	if strings.HasPrefix(contentType, "audio/mpeg") || strings.HasPrefix(contentType, "audio/mp3") {
		return true
	}
	if bytes.HasPrefix(data, []byte("ID3")) {
		return true
	}
	// Bare MPEG frame sync.
	return len(data) > 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

func ffmpegAvailable() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// guessExt picks a file extension for the raw download, preferring the
// Content-Type header and falling back to the URL path.
func guessExt(rawURL, contentType string) string {
	if contentType != "" {
		mediaType := strings.TrimSpace(strings.Split(contentType, ";")[0])
		if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
			return exts[0]
		}
	}
	if u, err := url.Parse(rawURL); err == nil {
		if ext := path.Ext(u.Path); ext != "" {
			return ext
		}
	}
	return ".bin"
}

func (f *Fetcher) writeTemp(data []byte, suffix string) (string, error) {
	tmp, err := os.CreateTemp(f.cfg.TempDir, "timbre-ref-*"+suffix)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}

	return tmp.Name(), nil
}

// transcode converts an arbitrary container to 16kHz mono WAV with ffmpeg.
// The raw download is removed on every path; only the WAV survives inside
// the returned asset.
func (f *Fetcher) transcode(ctx context.Context, data []byte, contentType, rawURL string) (*Asset, error) {
	rawPath, err := f.writeTemp(data, guessExt(rawURL, contentType))
	if err != nil {
		return nil, err
	}
	defer os.Remove(rawPath)

	wavPath := rawPath + ".wav"
	cmd := exec.CommandContext(ctx, "ffmpeg", "-y", "-i", rawPath, "-ar", "16000", "-ac", "1", wavPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		os.Remove(wavPath)
		f.logger.Debugw("ffmpeg transcode failed", "url", rawURL, "output", string(out))
		return nil, errors.Join(ErrInvalidAudio, fmt.Errorf("ffmpeg: %w", err))
	}

	converted, err := os.ReadFile(wavPath)
	if err != nil {
		os.Remove(wavPath)
		return nil, errors.Join(ErrInvalidAudio, err)
	}

	info, err := audio.ProbeWAV(converted)
	if err != nil {
		os.Remove(wavPath)
		return nil, errors.Join(ErrInvalidAudio, err)
	}

	return &Asset{Path: wavPath, SampleRate: info.SampleRate, Duration: info.Duration}, nil
}
