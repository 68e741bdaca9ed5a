package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"timbre/internal/audio"
	"timbre/internal/fetch"
	"timbre/internal/gate"
	"timbre/internal/speech"
)

// referenceServer serves a valid WAV sample as the reference voice.
func referenceServer(t *testing.T) *httptest.Server {
	t.Helper()
	samples := make([]int16, 24000)
	for i := range samples {
		samples[i] = int16((i % 100) * 80)
	}
	data := audio.EncodeWAV(samples, 24000)

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(data)
	}))
}

func newTestServer(t *testing.T, synth speech.Synthesizer, mutate func(*ServerConfig)) *Server {
	t.Helper()

	cfg := &ServerConfig{
		Environment:      "production",
		AllowedOrigins:   []string{"*"},
		Engine:           "stub",
		Concurrency:      1,
		AdmissionTimeout: time.Second,
		SynthesisTimeout: 30 * time.Second,
		FetchTimeout:     5 * time.Second,
		FetchRetries:     0,
		MaxTextChars:     5000,
		ChunkMaxChars:    240,
	}
	if mutate != nil {
		mutate(cfg)
	}

	logger := zap.NewNop().Sugar()
	fetcher := fetch.New(fetch.Config{
		Timeout:        cfg.FetchTimeout,
		Retries:        cfg.FetchRetries,
		BackoffInitial: time.Millisecond,
		TempDir:        t.TempDir(),
	}, logger)
	g := gate.New(cfg.Concurrency, cfg.AdmissionTimeout)
	svc := speech.NewService(speech.Config{
		MaxTextChars:  cfg.MaxTextChars,
		ChunkMaxChars: cfg.ChunkMaxChars,
	}, synth, logger)

	return NewServer(cfg, fetcher, g, svc, synth, logger)
}

func synthesize(s *Server, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		json.NewEncoder(&buf).Encode(b)
	}

	req := httptest.NewRequest(http.MethodPost, "/tts", &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestSynthesizeEndToEnd(t *testing.T) {
	ref := referenceServer(t)
	defer ref.Close()

	s := newTestServer(t, speech.NewStubSynthesizer(), nil)

	w := synthesize(s, map[string]any{
		"text":       "Hello from the synthesis pipeline.",
		"prompt_url": ref.URL,
	})

	require.Equal(t, 200, w.Code, w.Body.String())
	assert.Equal(t, "audio/wav", w.Header().Get("Content-Type"))
	assert.Equal(t, "24000", w.Header().Get("X-Sampling-Rate"))
	assert.Equal(t, "standard", w.Header().Get("X-Infer-Mode"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment; filename=tts_output_")

	body := w.Body.Bytes()
	require.Greater(t, len(body), 44)
	assert.Equal(t, "RIFF", string(body[:4]))
}

func TestSynthesizeBatchMode(t *testing.T) {
	ref := referenceServer(t)
	defer ref.Close()

	s := newTestServer(t, speech.NewStubSynthesizer(), func(cfg *ServerConfig) {
		cfg.ChunkMaxChars = 40
	})

	w := synthesize(s, map[string]any{
		"text":       strings.Repeat("A short sentence here. ", 8),
		"prompt_url": ref.URL,
		"infer_mode": "batch",
	})

	require.Equal(t, 200, w.Code, w.Body.String())
	assert.Equal(t, "batch", w.Header().Get("X-Infer-Mode"))
}

func TestSynthesizeRejectsBadRequests(t *testing.T) {
	ref := referenceServer(t)
	defer ref.Close()

	s := newTestServer(t, speech.NewStubSynthesizer(), nil)

	cases := []struct {
		name     string
		body     any
		wantCode int
	}{
		{"malformed json", `{"text": `, 400},
		{"missing prompt_url", map[string]any{"text": "Hello"}, 400},
		{"blank text", map[string]any{"text": "   ", "prompt_url": ref.URL}, 400},
		{"bad mode", map[string]any{"text": "Hello", "prompt_url": ref.URL, "infer_mode": "turbo"}, 400},
		{"top_p out of range", map[string]any{"text": "Hello", "prompt_url": ref.URL, "top_p": 1.5}, 400},
		{"ftp reference", map[string]any{"text": "Hello", "prompt_url": "ftp://host/ref.wav"}, 400},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := synthesize(s, tc.body)
			assert.Equal(t, tc.wantCode, w.Code, w.Body.String())

			var apiErr APIError
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
			assert.Equal(t, tc.wantCode, apiErr.Code)
			assert.NotEmpty(t, apiErr.Message)
		})
	}
}

func TestSynthesizeTextOverLimit(t *testing.T) {
	ref := referenceServer(t)
	defer ref.Close()

	s := newTestServer(t, speech.NewStubSynthesizer(), func(cfg *ServerConfig) {
		cfg.MaxTextChars = 50
	})

	w := synthesize(s, map[string]any{
		"text":       strings.Repeat("a", 51),
		"prompt_url": ref.URL,
	})
	assert.Equal(t, 400, w.Code)
}

func TestSynthesizeUnreachableReference(t *testing.T) {
	s := newTestServer(t, speech.NewStubSynthesizer(), nil)

	w := synthesize(s, map[string]any{
		"text":       "Hello",
		"prompt_url": "http://127.0.0.1:1/ref.wav",
	})
	assert.Equal(t, 502, w.Code, w.Body.String())
}

func TestSynthesizeInvalidReferenceAudio(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "this is an html page, not audio, with some padding")
	}))
	defer bad.Close()

	s := newTestServer(t, speech.NewStubSynthesizer(), nil)

	w := synthesize(s, map[string]any{
		"text":       "Hello",
		"prompt_url": bad.URL,
	})
	assert.Equal(t, 422, w.Code, w.Body.String())
}

func TestSynthesizeBackpressure(t *testing.T) {
	ref := referenceServer(t)
	defer ref.Close()

	slow := speech.NewStubSynthesizer()
	slow.Delay = 300 * time.Millisecond

	s := newTestServer(t, slow, func(cfg *ServerConfig) {
		cfg.Concurrency = 1
		cfg.AdmissionTimeout = 50 * time.Millisecond
	})

	body := map[string]any{"text": "Hello", "prompt_url": ref.URL}

	var wg sync.WaitGroup
	codes := make([]int, 2)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i > 0 {
				// Let the first request take the slot.
				time.Sleep(50 * time.Millisecond)
			}
			w := synthesize(s, body)
			codes[i] = w.Code
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 200, codes[0])
	assert.Equal(t, 429, codes[1], "second concurrent request should be shed")
}

func TestSynthesizeEngineFailure(t *testing.T) {
	ref := referenceServer(t)
	defer ref.Close()

	broken := speech.NewStubSynthesizer()
	broken.Err = errors.New("CUDA out of memory")

	s := newTestServer(t, broken, nil)

	w := synthesize(s, map[string]any{
		"text":       "Hello",
		"prompt_url": ref.URL,
	})
	assert.Equal(t, 500, w.Code, w.Body.String())
}

func TestHealthHealthy(t *testing.T) {
	s := newTestServer(t, speech.NewStubSynthesizer(), nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, serviceName, body["service"])
	assert.EqualValues(t, 1, body["concurrency"])
}

func TestHealthUnhealthy(t *testing.T) {
	broken := speech.NewStubSynthesizer()
	broken.Err = errors.New("model runner unreachable")

	s := newTestServer(t, broken, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	require.Equal(t, 503, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body["status"])
}

func TestRequestIDHonored(t *testing.T) {
	s := newTestServer(t, speech.NewStubSynthesizer(), nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "client-supplied-id")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, "client-supplied-id", w.Header().Get("X-Request-ID"))
}
