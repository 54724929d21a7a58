package gateway

import (
	"context"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Config holds the gateway service configuration.
type Config struct {
	Connection ConnectionConfig
	Bridge     BridgeConfig
	// EnableBridge turns on cross-instance fan-out; standalone gateways
	// leave it off and need no NATS.
	EnableBridge bool
}

// DefaultConfig returns a standalone gateway configuration.
func DefaultConfig() Config {
	return Config{
		Connection: DefaultConnectionConfig(),
		Bridge:     DefaultBridgeConfig(),
	}
}

// Service ties the hub, its HTTP surface and the optional bridge together.
type Service struct {
	hub     *Hub
	handler *Handler
	bridge  *Bridge
}

// NewService builds a gateway service. instanceID distinguishes this
// gateway on the shared stream. authorizer and loader may be nil.
func NewService(config Config, authorizer Authorizer, loader SnapshotLoader, clock clockwork.Clock, instanceID string) (*Service, error) {
	hub := NewHub(config.Connection, clock)

	var bridge *Bridge
	if config.EnableBridge {
		var err error
		bridge, err = NewBridge(hub, instanceID, config.Bridge)
		if err != nil {
			return nil, err
		}
		hub.SetBridge(bridge)
	}

	return &Service{
		hub:     hub,
		handler: NewHandler(hub, authorizer, loader),
		bridge:  bridge,
	}, nil
}

// Hub exposes the hub, mainly for the persistence saver.
func (s *Service) Hub() *Hub { return s.hub }

// RegisterRoutes attaches the gateway endpoints to a mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.handler.RegisterRoutes(mux)
	log.Info().Msg("board gateway routes registered")
}

// Start runs the hub and bridge until the context is cancelled.
func (s *Service) Start(ctx context.Context) error {
	go s.hub.Start(ctx)

	if s.bridge != nil {
		go func() {
			if err := s.bridge.Start(ctx); err != nil {
				log.Error().Err(err).Msg("bridge failed")
			}
		}()
	}

	<-ctx.Done()
	if s.bridge != nil {
		s.bridge.Close()
	}
	log.Info().Msg("board gateway stopped")
	return nil
}
