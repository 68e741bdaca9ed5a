package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"timbre/internal/gate"
	"timbre/internal/speech"
)

func (s *Server) SetupRoutes() {
	s.router.GET("/health", s.HandleHealth)
	s.router.POST("/tts", s.HandleSynthesize)
}

// HandleSynthesize runs the full pipeline: parse and validate the request,
// fetch the reference voice, wait for an inference slot, synthesize, and
// stream the WAV back.
func (s *Server) HandleSynthesize(c *gin.Context) {
	requestID := c.GetString("request_id")

	var req speech.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		s.SendError(c, 400, "Invalid request body", err.Error())
		return
	}
	if err := s.speech.ValidateRequest(&req); err != nil {
		code, message := classifyError(err)
		s.SendError(c, code, message, err.Error())
		return
	}

	ctx := c.Request.Context()

	asset, err := s.fetcher.Fetch(ctx, req.PromptURL)
	if err != nil {
		s.logger.Warnw("reference audio fetch failed",
			"request_id", requestID,
			"prompt_url", req.PromptURL,
			"error", err,
		)
		code, message := classifyError(err)
		s.SendError(c, code, message, err.Error())
		return
	}
	defer asset.Close()

	release, err := s.gate.Acquire(ctx)
	if err != nil {
		if errors.Is(err, gate.ErrOverloaded) {
			c.Header("Retry-After", "5")
			s.logger.Warnw("request rejected at capacity", "request_id", requestID)
		}
		code, message := classifyError(err)
		s.SendError(c, code, message, "")
		return
	}
	defer release()

	// Once inference starts it runs to completion even if the client goes
	// away. Interrupting the model mid-generation can leave the GPU in a
	// bad state, so only the synthesis timeout bounds it.
	synthCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.SynthesisTimeout)
	defer cancel()

	result, err := s.speech.Synthesize(synthCtx, requestID, &req, asset.Path)
	if err != nil {
		s.logger.Errorw("synthesis failed",
			"request_id", requestID,
			"mode", req.Mode,
			"error", err,
		)
		code, message := classifyError(err)
		s.SendError(c, code, message, err.Error())
		return
	}

	wav := result.WAV()

	c.Header("X-Sampling-Rate", fmt.Sprintf("%d", result.SampleRate))
	c.Header("X-Infer-Mode", string(result.Mode))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=tts_output_%s.wav", requestID))
	c.DataFromReader(200, int64(len(wav)), "audio/wav", bytes.NewReader(wav), nil)
}

// HandleHealth probes the synthesis engine and reports service state.
func (s *Server) HandleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := s.synth.Healthy(ctx); err != nil {
		c.JSON(503, gin.H{
			"status":    "unhealthy",
			"service":   serviceName,
			"version":   serviceVersion,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"detail":    err.Error(),
		})
		return
	}

	c.JSON(200, gin.H{
		"status":      "healthy",
		"service":     serviceName,
		"version":     serviceVersion,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"engine":      s.config.Engine,
		"concurrency": s.gate.Capacity(),
		"metrics":     s.metrics.Snapshot(),
	})
}
