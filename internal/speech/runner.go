package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"timbre/internal/audio"
)

const healthDialTimeout = 5 * time.Second

// runnerRequest is the message sent to the model-runner process. The
// runner shares the container filesystem, so the staged reference sample
// is passed by path.
type runnerRequest struct {
	Text       string `json:"text"`
	PromptPath string `json:"prompt_path"`
	Params     Params `json:"params"`
}

// runnerEvent terminates a synthesis exchange. PCM arrives beforehand as
// binary frames.
type runnerEvent struct {
	Event      string `json:"event"` // "done" or "error"
	SampleRate int    `json:"sample_rate,omitempty"`
	Message    string `json:"message,omitempty"`
}

// RunnerSynthesizer talks to the GPU model-runner process over a websocket.
// Each call opens one connection, streams the request, collects binary PCM
// frames and waits for the terminating event.
type RunnerSynthesizer struct {
	url    string
	dialer *websocket.Dialer
}

func NewRunnerSynthesizer(rawURL string) (*RunnerSynthesizer, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid runner URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("invalid runner URL scheme %q", u.Scheme)
	}
	if !strings.HasSuffix(u.Path, "/synthesize") {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/synthesize"
	}

	return &RunnerSynthesizer{url: u.String(), dialer: websocket.DefaultDialer}, nil
}

func (r *RunnerSynthesizer) Synthesize(ctx context.Context, text, promptPath string, p Params) (*Clip, error) {
	conn, _, err := r.dialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return nil, errors.Join(ErrEngineUnavailable, fmt.Errorf("dial model runner: %w", err))
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
		conn.SetWriteDeadline(deadline)
	}

	req := runnerRequest{Text: text, PromptPath: promptPath, Params: p}
	if err := conn.WriteJSON(req); err != nil {
		return nil, errors.Join(ErrSynthesis, fmt.Errorf("send request: %w", err))
	}

	var pcm []byte
	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			return nil, errors.Join(ErrSynthesis, fmt.Errorf("read runner response: %w", err))
		}

		switch messageType {
		case websocket.BinaryMessage:
			pcm = append(pcm, message...)
		case websocket.TextMessage:
			var ev runnerEvent
			if err := json.Unmarshal(message, &ev); err != nil {
				return nil, errors.Join(ErrSynthesis, fmt.Errorf("decode runner event: %w", err))
			}
			switch ev.Event {
			case "done":
				if len(pcm) == 0 {
					return nil, ErrNoAudio
				}
				return &Clip{SampleRate: ev.SampleRate, Samples: audio.BytesToInt16(pcm)}, nil
			case "error":
				return nil, errors.Join(ErrSynthesis, fmt.Errorf("model runner: %s", ev.Message))
			}
		}
	}
}

// Healthy reports whether the runner accepts connections. It backs the
// readiness probe and the startup model check.
func (r *RunnerSynthesizer) Healthy(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, healthDialTimeout)
	defer cancel()

	conn, _, err := r.dialer.DialContext(dialCtx, r.url, nil)
	if err != nil {
		return errors.Join(ErrEngineUnavailable, err)
	}
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return conn.Close()
}
