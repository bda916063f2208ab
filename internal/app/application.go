package app

import (
	"context"
	"fmt"
	"log/slog"

	"rentmap.hu/internal/appconf"
	"rentmap.hu/internal/auth"
	"rentmap.hu/internal/bkk"
	"rentmap.hu/internal/geocode"
	"rentmap.hu/internal/notify"
	"rentmap.hu/internal/places"
	"rentmap.hu/internal/stops"
)

// Application holds the dependencies shared by the HTTP handlers and middleware.
type Application struct {
	Config   appconf.Config
	Logger   *slog.Logger
	Stops    *stops.Service
	Store    *places.Store
	Places   *places.Service
	Geocoder *geocode.Client
	Hub      *notify.Hub
	Auth     *auth.Verifier
}

// New builds every service from cfg. The caller owns the result and must Close it.
func New(ctx context.Context, cfg appconf.Config, logger *slog.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	upstream, err := bkk.NewClient(bkk.Config{
		BaseURL:  cfg.Stops.BaseURL,
		APIKey:   cfg.Stops.APIKey,
		Radius:   cfg.Stops.Radius,
		MaxCount: cfg.Stops.MaxCount,
		Timeout:  cfg.Stops.RequestTimeout,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("stop API client: %w", err)
	}

	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Audience)
	if err != nil {
		return nil, err
	}

	store, err := places.OpenStore(ctx, cfg.Places.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open places store: %w", err)
	}

	geocoder := geocode.NewClient(geocode.Config{
		BaseURL:           cfg.Geocode.BaseURL,
		UserAgent:         cfg.Geocode.UserAgent,
		CountryCodes:      cfg.Geocode.CountryCodes,
		Limit:             cfg.Geocode.Limit,
		RequestsPerSecond: cfg.Geocode.RequestsPerSecond,
		Logger:            logger,
	})
	hub := notify.NewHub(logger, cfg.Server.CORSOrigins)

	return &Application{
		Config: cfg,
		Logger: logger,
		Stops: stops.NewService(upstream, stops.Options{
			TTL:           cfg.Stops.CacheTTL,
			ReuseDistance: cfg.Stops.ReuseDistance,
			Radius:        cfg.Stops.Radius,
			MinInterval:   cfg.Stops.MinInterval,
			Logger:        logger,
		}),
		Store:    store,
		Places:   places.NewService(store, geocoder, hub, logger),
		Geocoder: geocoder,
		Hub:      hub,
		Auth:     verifier,
	}, nil
}

func (app *Application) Close() error {
	if app.Store == nil {
		return nil
	}
	return app.Store.Close()
}
