package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/zeusync/jackal/internal/core/events/bus"
	"github.com/zeusync/jackal/internal/core/observability/log"
	"github.com/zeusync/jackal/internal/core/resource"
	"github.com/zeusync/jackal/internal/core/vfs"
)

// MountLister exposes the mount table, see *vfs.FileSystem.
type MountLister interface {
	Mounts() []vfs.MountInfo
}

// ResourceLister exposes the resource cache, see *resource.Manager.
type ResourceLister interface {
	Resources() []resource.Info
	Stats() resource.Stats
}

// Server is the development inspector: a websocket feed of engine events and
// read-only JSON views of the mount table and the resource cache.
//
//	GET /events     websocket, one JSON object per bus event
//	GET /mounts     mounts in search order
//	GET /resources  cached resources
//	GET /stats      cache counters
type Server struct {
	addr      string
	events    bus.EventBus
	mounts    MountLister
	resources ResourceLister
	logger    log.Log

	hub          *hub
	subscription bus.Subscription
	server       *http.Server
	listener     net.Listener

	running atomic.Bool
	closed  atomic.Bool
}

// New creates the server and subscribes it to every event on events.
func New(addr string, events bus.EventBus, mounts MountLister, resources ResourceLister, logger log.Log) (*Server, error) {
	s := &Server{
		addr:      addr,
		events:    events,
		mounts:    mounts,
		resources: resources,
		logger:    log.OrNop(logger).Named("devtools"),
		hub:       newHub(),
	}
	if events != nil {
		sub, err := events.Subscribe(bus.Wildcard, s.forward)
		if err != nil {
			return nil, err
		}
		s.subscription = sub
	}
	return s, nil
}

// Handler returns the HTTP routes, usable without Start.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /mounts", s.handleMounts)
	mux.HandleFunc("GET /resources", s.handleResources)
	mux.HandleFunc("GET /stats", s.handleStats)
	return mux
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(_ context.Context) error {
	if s.closed.Load() {
		return ErrServerClosed
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrServerAlreadyRunning
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("%w: %w", ErrListenerFailed, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("devtools server stopped", log.Error(err))
		}
	}()
	s.logger.Info("devtools listening", log.String("addr", ln.Addr().String()))
	return nil
}

// Addr is the bound address once started, else the configured one.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Clients reports the number of connected event subscribers.
func (s *Server) Clients() int {
	return s.hub.len()
}

// Stop unsubscribes from the bus, disconnects clients and shuts the HTTP
// server down.
func (s *Server) Stop(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs error
	if s.subscription != nil {
		errs = errors.Join(errs, s.events.Unsubscribe(s.subscription))
	}
	s.hub.closeAll()
	if s.running.Load() {
		errs = errors.Join(errs, s.server.Shutdown(ctx))
	}
	return errs
}
