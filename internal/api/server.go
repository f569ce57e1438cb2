// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api exposes the routing engine and execution sandbox over HTTP.
// The adapter is presentation-only: it validates input shapes, invokes the
// engine, and maps failures to structured "no automated result" responses.
// It holds no routing logic of its own.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/skillrouter/internal/engine"
	"github.com/traylinx/skillrouter/internal/ledger"
	"github.com/traylinx/skillrouter/internal/request"
	"github.com/traylinx/skillrouter/internal/sandbox"
)

// Server wires the HTTP routes to the engine and sandbox.
type Server struct {
	router  *engine.Router
	sandbox *sandbox.Sandbox
	engine  *gin.Engine
}

// routeRequestBody is the POST /v1/route payload.
type routeRequestBody struct {
	Text    string          `json:"text" binding:"required"`
	Context request.Context `json:"context"`
	Hint    *request.Hint   `json:"hint"`
}

// executeRequestBody is the POST /v1/execute payload.
type executeRequestBody struct {
	Skill   string          `json:"skill" binding:"required"`
	Context request.Context `json:"context"`
}

// NewServer builds the gin engine with all routes registered. debug controls
// gin's mode; release mode silences the route dump.
func NewServer(router *engine.Router, sb *sandbox.Sandbox, debug bool) *Server {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router:  router,
		sandbox: sb,
		engine:  gin.New(),
	}
	s.engine.Use(gin.Recovery())

	s.engine.GET("/healthz", s.handleHealth)
	v1 := s.engine.Group("/v1")
	{
		v1.POST("/route", s.handleRoute)
		v1.POST("/execute", s.handleExecute)
		v1.GET("/history", s.handleHistory)
		v1.POST("/history/:id/override", s.handleOverride)
	}
	return s
}

// Run starts the HTTP server on addr and blocks.
func (s *Server) Run(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	log.Infof("API listening on %s", addr)
	return s.engine.Run(addr)
}

// Handler exposes the underlying http.Handler for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleRoute scores the request and returns the routing decision.
func (s *Server) handleRoute(c *gin.Context) {
	var body routeRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	decision, err := s.router.Route(c.Request.Context(), engine.RouteRequest{
		Text:    body.Text,
		Context: body.Context,
		Hint:    body.Hint,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, decision)
}

// handleExecute runs a skill and returns its ExecutionRecord. Failed
// executions are still HTTP 200: the record carries the failure, and the
// caller is told to proceed manually. The host integration never crashes on
// a skill failure.
func (s *Server) handleExecute(c *gin.Context) {
	var body executeRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record := s.sandbox.Execute(c.Request.Context(), body.Skill, body.Context)
	if !record.Success {
		c.JSON(http.StatusOK, gin.H{
			"result":  "no automated result; proceed manually",
			"record":  record,
			"retry":   record.ErrorClass == sandbox.ErrClassConcurrency,
			"success": false,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"record":  record,
	})
}

// handleHistory returns the most recent ledger entries, newest first.
func (s *Server) handleHistory(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	entries, err := s.router.History(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   len(entries),
		"history": entries,
	})
}

// handleOverride marks a recorded selection as overridden by the caller, so
// it stops feeding the retrieval index.
func (s *Server) handleOverride(c *gin.Context) {
	id := c.Param("id")
	if err := s.router.MarkOverridden(id); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "id": id})
}
