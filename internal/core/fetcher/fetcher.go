// Package fetcher provides the profile extractors the scheduler dispatches to.
package fetcher

import (
	"context"
	"fmt"
	"io"

	"github.com/feedmeta/feedmeta/internal/config"
	"github.com/feedmeta/feedmeta/internal/core"
	"github.com/feedmeta/feedmeta/internal/core/engine"
)

// Drivers accepted by New.
const (
	DriverRod  = "rod"
	DriverNone = "none"
)

// Fetcher is an engine.Fetcher that owns resources to release.
type Fetcher interface {
	engine.Fetcher
	io.Closer
}

// New builds the extractor selected by cfg.Driver.
func New(cfg config.FetcherConfig, logger engine.Logger) (Fetcher, error) {
	switch cfg.Driver {
	case "", DriverRod:
		return NewRodFetcher(cfg.ControlURL, cfg.Headless, cfg.BaseURL, logger), nil
	case DriverNone:
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("unsupported fetcher driver %q", cfg.Driver)
	}
}

// Disabled extracts nothing; every fetch resolves as unavailable.
type Disabled struct{}

// Fetch returns an empty result.
func (Disabled) Fetch(context.Context, engine.FetchRequest) (core.ProfileResult, error) {
	return core.ProfileResult{}, nil
}

// Close is a no-op.
func (Disabled) Close() error { return nil }
