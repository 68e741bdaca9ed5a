package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"timbre/internal/fetch"
	"timbre/internal/gate"
	"timbre/internal/speech"
)

func loadConfig() *ServerConfig {
	cfg := &ServerConfig{}

	flag.StringVar(&cfg.Host, "host", GetEnvWithDefault("HOST", "0.0.0.0"), "listen address")
	flag.IntVar(&cfg.Port, "port", GetEnvAsIntWithDefault("PORT", 6008), "listen port")
	flag.StringVar(&cfg.Environment, "env", GetEnvWithDefault("ENVIRONMENT", "production"), "environment (development or production)")
	flag.StringVar(&cfg.LogLevel, "log-level", GetEnvWithDefault("LOG_LEVEL", "info"), "log level")
	flag.StringVar(&cfg.LogFile, "log-file", GetEnvWithDefault("LOG_FILE", ""), "rotating log file path, empty for console only")

	flag.StringVar(&cfg.Engine, "engine", GetEnvWithDefault("ENGINE", "runner"), "synthesis engine: runner, exec or stub")
	flag.StringVar(&cfg.RunnerURL, "runner-url", GetEnvWithDefault("RUNNER_URL", "ws://127.0.0.1:9000"), "model runner websocket URL")
	flag.StringVar(&cfg.ExecCommand, "exec-command", GetEnvWithDefault("EXEC_COMMAND", ""), "inference binary command template")

	flag.IntVar(&cfg.Concurrency, "concurrency", GetEnvAsIntWithDefault("CONCURRENCY", 1), "concurrent inference slots")
	admission := flag.Int("admission-timeout", GetEnvAsIntWithDefault("ADMISSION_TIMEOUT_SECONDS", 30), "seconds to wait for an inference slot")
	synthesis := flag.Int("synthesis-timeout", GetEnvAsIntWithDefault("SYNTHESIS_TIMEOUT_SECONDS", 300), "seconds a synthesis may run")

	fetchTimeout := flag.Int("fetch-timeout", GetEnvAsIntWithDefault("FETCH_TIMEOUT_SECONDS", 60), "seconds to fetch reference audio")
	retries := flag.Int("fetch-retries", GetEnvAsIntWithDefault("FETCH_RETRIES", 3), "retry budget for reference audio fetch")
	flag.Int64Var(&cfg.MaxPayloadMB, "max-payload-mb", int64(GetEnvAsIntWithDefault("MAX_PAYLOAD_MB", 32)), "reference audio size limit in MB")
	flag.IntVar(&cfg.MaxTextChars, "max-text-chars", GetEnvAsIntWithDefault("MAX_TEXT_CHARS", 5000), "synthesis text length limit")
	flag.IntVar(&cfg.ChunkMaxChars, "chunk-max-chars", GetEnvAsIntWithDefault("CHUNK_MAX_CHARS", 240), "batch mode chunk size")
	flag.BoolVar(&cfg.AllowTranscode, "allow-transcode", os.Getenv("ALLOW_TRANSCODE") == "true", "transcode non-WAV reference audio with ffmpeg")
	flag.Parse()

	cfg.AllowedOrigins = GetEnvAsSlice("ALLOWED_ORIGINS", []string{"*"})
	cfg.ReadTimeout = 30 * time.Second
	cfg.WriteTimeout = 10 * time.Minute
	cfg.IdleTimeout = 2 * time.Minute
	cfg.ShutdownTimeout = 15 * time.Second
	cfg.AdmissionTimeout = time.Duration(*admission) * time.Second
	cfg.SynthesisTimeout = time.Duration(*synthesis) * time.Second
	cfg.FetchTimeout = time.Duration(*fetchTimeout) * time.Second
	cfg.FetchRetries = uint64(*retries)

	return cfg
}

func buildSynthesizer(cfg *ServerConfig) (speech.Synthesizer, error) {
	switch cfg.Engine {
	case "runner":
		return speech.NewRunnerSynthesizer(cfg.RunnerURL)
	case "exec":
		return speech.NewExecSynthesizer(cfg.ExecCommand)
	case "stub":
		return speech.NewStubSynthesizer(), nil
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
	}
}

func main() {
	cfg := loadConfig()

	logger, err := InitLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	synth, err := buildSynthesizer(cfg)
	if err != nil {
		logger.Fatalw("engine setup failed", "engine", cfg.Engine, "error", err)
	}

	probeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := synth.Healthy(probeCtx); err != nil {
		logger.Warnw("engine not healthy at startup, serving anyway",
			"engine", cfg.Engine,
			"error", err,
		)
	}
	cancel()

	fetcher := fetch.New(fetch.Config{
		Timeout:         cfg.FetchTimeout,
		Retries:         cfg.FetchRetries,
		MaxPayloadBytes: cfg.MaxPayloadMB << 20,
		AllowTranscode:  cfg.AllowTranscode,
	}, logger)

	g := gate.New(cfg.Concurrency, cfg.AdmissionTimeout)

	svc := speech.NewService(speech.Config{
		MaxTextChars:  cfg.MaxTextChars,
		ChunkMaxChars: cfg.ChunkMaxChars,
	}, synth, logger)

	server := NewServer(cfg, fetcher, g, svc, synth, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Infow("server starting",
			"addr", httpServer.Addr,
			"engine", cfg.Engine,
			"concurrency", cfg.Concurrency,
			"environment", cfg.Environment,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("forced shutdown", "error", err)
	}
	logger.Info("server stopped")
}
