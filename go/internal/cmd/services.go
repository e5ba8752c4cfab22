package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/courtside/go/internal/live/fanout"
	"github.com/mcdev12/courtside/go/internal/live/gateway"
	"github.com/mcdev12/courtside/go/internal/live/relay"
	"github.com/mcdev12/courtside/go/internal/live/repository"
	"github.com/mcdev12/courtside/go/internal/live/session"
)

type Services struct {
	Controller *session.Controller
	Gateway    *gateway.Service
	Relay      *relay.JetStreamPublisher
}

func setupServices(ctx context.Context, database *sql.DB, cfg Config, sessionCfg session.Config) (*Services, error) {
	// Repository → Controller → Gateway, with the relay as optional mirror.
	services := &Services{}

	var publisher session.Publisher
	if cfg.NATSEnabled {
		jsCfg := relay.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATSURL
		js, err := relay.NewJetStreamPublisher(ctx, jsCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create JetStream publisher: %w", err)
		}
		services.Relay = js
		publisher = js
	}

	hub := fanout.NewHub()
	repo := repository.NewRepository(database)
	services.Controller = session.NewController(repo, hub, publisher, clockwork.NewRealClock(), sessionCfg)
	services.Gateway = gateway.NewService(gatewayConfig(cfg), services.Controller, hub)
	return services, nil
}

func (s *Services) Close() {
	if s.Relay != nil {
		_ = s.Relay.Close()
	}
}
