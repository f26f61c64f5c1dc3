// Package stream hosts the WebSocket streaming server: the control-plane
// HTTP router, the per-connection read/write pumps, the subscriber
// registry, and the single producer thread driving one camera (spec.md
// §4.6).
package stream

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xvii-vision/genicvbridge/internal/registry"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server hosts the control plane at "/" and drives Producer for its
// lifetime.
type Server struct {
	addr     string
	log      *zap.Logger
	registry *registry.Registry
	producer *Producer
	router   *gin.Engine
	http     *http.Server
	stopping atomic.Bool
}

// New builds a server bound to addr (host:port), wiring a fresh registry
// and producer from cfg.
func New(addr string, cfg ProducerConfig, log *zap.Logger) *Server {
	reg := registry.New()
	s := &Server{
		addr:     addr,
		log:      log,
		registry: reg,
		producer: NewProducer(cfg, reg, log),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", s.handleHealthz)
	r.GET("/", s.handleWebSocket)
	s.router = r
	s.http = &http.Server{Addr: addr, Handler: r}
	return s
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"stream": s.producer.Status().String(),
	})
}

func (s *Server) handleWebSocket(c *gin.Context) {
	if s.stopping.Load() {
		c.Status(http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	wsConn := newConnection(conn, s.producer.cfg.MaxQueue, s.log)
	wsConn.onControl = s.handleControlMessage
	wsConn.onClose = func(c *connection) { s.registry.Remove(c.ID()) }

	go wsConn.writePump()
	wsConn.readPump()
}

// handleControlMessage implements spec.md §4.6's control-plane contract
// for the three accepted text payloads.
func (s *Server) handleControlMessage(c *connection, text string) {
	switch text {
	case "status":
		c.reply(s.producer.StatusText())
	case "start":
		s.registry.Add(c)
	case "stop":
		s.registry.Remove(c.ID())
	default:
		s.log.Debug("ignoring unknown control message", zap.String("text", text))
	}
}

// Run starts the producer and serves HTTP until Stop is called. It blocks
// until the HTTP server has fully shut down.
func (s *Server) Run() error {
	go s.producer.Run()

	err := s.http.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop implements spec.md §4.6's Shutdown: stop accepting connections,
// join the producer, close every active subscriber with 1001/"shutdown",
// then stop the HTTP server. Idempotent within the bounds of net/http's
// own Shutdown idempotency.
func (s *Server) Stop(ctx context.Context) error {
	s.stopping.Store(true)

	s.producer.Stop()
	s.registry.CloseAll(1001, "shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}
