package main

import (
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"timbre/internal/fetch"
	"timbre/internal/gate"
	"timbre/internal/speech"
)

const (
	serviceName    = "timbre-api"
	serviceVersion = "1.0.0"
)

type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type ServerConfig struct {
	Host            string
	Port            int
	Environment     string
	AllowedOrigins  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	LogLevel string
	LogFile  string

	// Engine selects the model backend: "runner", "exec" or "stub".
	Engine      string
	RunnerURL   string
	ExecCommand string

	Concurrency      int
	AdmissionTimeout time.Duration
	SynthesisTimeout time.Duration

	FetchTimeout   time.Duration
	FetchRetries   uint64
	MaxPayloadMB   int64
	MaxTextChars   int
	ChunkMaxChars  int
	AllowTranscode bool
}

type Server struct {
	config  *ServerConfig
	router  *gin.Engine
	speech  *speech.Service
	fetcher *fetch.Fetcher
	gate    *gate.Gate
	synth   speech.Synthesizer
	logger  *zap.SugaredLogger
	metrics *Metrics
}

type Metrics struct {
	RequestCount  atomic.Int64
	ErrorCount    atomic.Int64
	RejectedCount atomic.Int64
	lastErrorUnix atomic.Int64
}

func (m *Metrics) RecordError() {
	m.ErrorCount.Add(1)
	m.lastErrorUnix.Store(time.Now().Unix())
}

func (m *Metrics) Snapshot() gin.H {
	snap := gin.H{
		"request_count":  m.RequestCount.Load(),
		"error_count":    m.ErrorCount.Load(),
		"rejected_count": m.RejectedCount.Load(),
	}
	if ts := m.lastErrorUnix.Load(); ts > 0 {
		snap["last_error_time"] = time.Unix(ts, 0).UTC().Format(time.RFC3339)
	}
	return snap
}
