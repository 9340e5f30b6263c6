// Package rpc serves the validator's read-only JSON API: the round status
// summary, per-agent dashboards, contract event streams, and challenge
// history. Everything it returns is recorded state; nothing here mutates the
// store.
package rpc

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Dhenz14/HivePoA-sub000/validator/db/iface"
	"github.com/Dhenz14/HivePoA-sub000/validator/reputation"
	"github.com/Dhenz14/HivePoA-sub000/validator/rewards"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "rpc")

// ChannelStats exposes the live transport counters the status endpoint
// reports. channel.Service is the production implementation.
type ChannelStats interface {
	SessionCount() int
	PendingCount() int
}

// DigestSource supplies the latest ledger block digest for the status
// endpoint. hive.Service is the production implementation.
type DigestSource interface {
	CurrentDigest() string
}

// Config options for the read API service.
type Config struct {
	Host             string
	Port             int
	AllowedOrigins   []string
	DB               iface.ValidatorDB
	Channel          ChannelStats
	Rewards          *rewards.Accumulator
	Reputation       *reputation.Policy
	Digests          DigestSource
	ValidatorAccount string
}

// Service serves the JSON read API over HTTP.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *Config
	server *http.Server

	lock     sync.RWMutex
	serveErr error
}

// New creates the read API service ready to listen on Start.
func New(ctx context.Context, cfg *Config) *Service {
	ctx, cancel := context.WithCancel(ctx)
	s := &Service{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
	}
	router := mux.NewRouter()
	router.HandleFunc("/poa/v1/status", s.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/poa/v1/agents/{id}", s.handleAgent).Methods(http.MethodGet)
	router.HandleFunc("/poa/v1/contracts/{id}/events", s.handleContractEvents).Methods(http.MethodGet)
	router.HandleFunc("/poa/v1/challenges", s.handleChallenges).Methods(http.MethodGet)
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           corsMiddleware(cfg.AllowedOrigins, router),
		ReadHeaderTimeout: time.Second,
	}
	return s
}

// corsMiddleware lets operator dashboards served from another origin read
// the API. The surface is GET-only, so no mutating methods are exposed.
func corsMiddleware(allowedOrigins []string, h http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		MaxAge:         600,
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(h)
}

// Start begins serving the read API.
func (s *Service) Start() {
	go func() {
		log.WithField("address", s.server.Addr).Info("Serving read API")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Read API listener failed")
			s.lock.Lock()
			s.serveErr = err
			s.lock.Unlock()
		}
	}()
}

// Stop shuts the listener down, letting in-flight requests finish.
func (s *Service) Stop() error {
	s.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Status reports an error if the listener has failed.
func (s *Service) Status() error {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.serveErr
}
