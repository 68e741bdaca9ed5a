package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"timbre/internal/fetch"
	"timbre/internal/gate"
	"timbre/internal/speech"
)

// 499 is the conventional code for a client that closed the connection
// before the response was written.
const statusClientClosedRequest = 499

func GetEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func GetEnvAsIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func GetEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// InitLogger builds the process logger: console output always, plus a
// size-rotated file when a log path is configured.
func InitLogger(level, file string) (*zap.SugaredLogger, error) {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info", "":
		zapLevel = zapcore.InfoLevel
	case "warn", "warning":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("unsupported log level: %s", level)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var output io.Writer = os.Stderr
	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o750); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		output = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    50, // MB
			MaxBackups: 10,
			Compress:   true,
		})
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.AddSync(output),
		zapLevel,
	)
	return zap.New(core).Sugar(), nil
}

func (s *Server) SendError(c *gin.Context, code int, message string, details string) {
	s.metrics.RecordError()
	c.AbortWithStatusJSON(code, APIError{
		Code:    code,
		Message: message,
		Details: details,
	})
}

// classifyError maps the pipeline error taxonomy onto HTTP statuses.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, "Client closed request"
	case errors.Is(err, fetch.ErrUnsupportedScheme):
		return 400, "Invalid reference URL"
	case errors.Is(err, speech.ErrInvalidInput):
		return 400, "Invalid synthesis request"
	case errors.Is(err, speech.ErrTextTooLong):
		return 400, "Text too long"
	case errors.Is(err, fetch.ErrPayloadTooLarge):
		return 413, "Reference audio too large"
	case errors.Is(err, fetch.ErrInvalidAudio):
		return 422, "Reference audio not decodable"
	case errors.Is(err, gate.ErrOverloaded):
		return 429, "Server is at capacity, retry later"
	case errors.Is(err, fetch.ErrFetchFailure):
		return 502, "Failed to fetch reference audio"
	case errors.Is(err, speech.ErrEngineUnavailable):
		return 503, "Synthesis engine unavailable"
	default:
		return 500, "Synthesis failed"
	}
}
