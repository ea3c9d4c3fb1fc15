// Package admin serves the HTTP control surface of a running rank.
package admin

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/cictl/internal/observability"
	"github.com/danmuck/cictl/internal/rank"
)

const version = "0.1.0"

// Rank is what the admin surface needs from a rank.
type Rank interface {
	ID() string
	Status() rank.Status
	History(limit int) []rank.HistoryEntry
	ClearFaults()
	Bringup() error
}

type Server struct {
	Name     string
	Addr     string
	Appeared time.Time

	rank   Rank
	ready  atomic.Bool
	router *gin.Engine
}

func New(name, addr string, r Rank, corsOrigins []string) *Server {
	observability.RegisterMetrics()
	g := gin.New()
	g.Use(gin.Recovery())
	g.Use(observability.RequestLogger(log.Logger))
	g.Use(observability.RequestMetricsMiddleware(name))
	g.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = g.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		Name:     name,
		Addr:     addr,
		Appeared: time.Now(),
		rank:     r,
		router:   g,
	}
	s.RegisterRoutes()
	return s
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

// SetReady flips the /ready answer, normally once bring-up finished.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

func (s *Server) RegisterRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.Name,
			"rank":    s.rank.ID(),
			"version": version,
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		status := http.StatusOK
		if !s.ready.Load() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   s.ready.Load(),
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.Name,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.rank.Status())
	})

	s.router.GET("/history", func(c *gin.Context) {
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
				return
			}
			limit = n
		}
		c.JSON(http.StatusOK, gin.H{"entries": historyView(s.rank.History(limit))})
	})

	s.router.POST("/faults/clear", func(c *gin.Context) {
		before := s.rank.Status()
		s.rank.ClearFaults()
		log.Info().
			Str("rank", s.rank.ID()).
			Str("decode", before.FaultDecode.String()).
			Str("collision", before.FaultCollide.String()).
			Msg("faults cleared")
		c.JSON(http.StatusOK, gin.H{
			"status":            "ok",
			"cleared_decode":    before.FaultDecode,
			"cleared_collision": before.FaultCollide,
		})
	})

	s.router.POST("/bringup", func(c *gin.Context) {
		s.SetReady(false)
		started := time.Now()
		if err := s.rank.Bringup(); err != nil {
			class := rank.Classify(err)
			log.Error().Str("rank", s.rank.ID()).Str("class", class.String()).Err(err).Msg("bringup failed")
			c.JSON(statusFor(class), gin.H{"error": err.Error(), "class": class.String()})
			return
		}
		s.SetReady(true)
		c.JSON(http.StatusOK, gin.H{"status": "ok", "duration": time.Since(started).String()})
	})
}

// Serve listens on s.Addr until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{Addr: s.Addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdown); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

type historyEntry struct {
	Seq   uint64    `json:"seq"`
	Dir   string    `json:"dir"`
	At    time.Time `json:"at"`
	Words []string  `json:"words"`
}

func historyView(entries []rank.HistoryEntry) []historyEntry {
	out := make([]historyEntry, 0, len(entries))
	for _, e := range entries {
		words := make([]string, len(e.Words))
		for i, w := range e.Words {
			words[i] = strconv.FormatUint(uint64(w), 16)
		}
		out = append(out, historyEntry{Seq: e.Seq, Dir: string(rune(e.Dir)), At: e.At, Words: words})
	}
	return out
}

func statusFor(class rank.ErrorClass) int {
	switch class {
	case rank.ClassTimeout:
		return http.StatusGatewayTimeout
	case rank.ClassTransport:
		return http.StatusBadGateway
	case rank.ClassInvariant:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
