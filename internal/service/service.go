// Package service implements the room lifecycle: the registry that admits
// members, the readiness and gathering coordinators, the per-room trip
// pipeline and the wallet. Every component is built by New around one
// repository.Store; none of them keep global state.
package service

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/iliyamo/ridesplit/internal/clock"
	"github.com/iliyamo/ridesplit/internal/config"
	"github.com/iliyamo/ridesplit/internal/fare"
	"github.com/iliyamo/ridesplit/internal/repository"
)

// Options carries the collaborators that tests replace.
type Options struct {
	Clock    clock.Clock
	Events   Publisher
	Variance fare.Variance
	IDs      IDGenerator
	Logger   *slog.Logger
}

// Service groups the coordinators.
type Service struct {
	Store     *repository.Store
	Registry  *RoomRegistry
	Readiness *ReadinessCoordinator
	Gathering *GatheringCoordinator
	Pipeline  *TripPipeline
	Wallet    *Wallet
}

// base holds what every coordinator shares.
type base struct {
	store *repository.Store
	cfg   config.PipelineConfig
	log   *slog.Logger
}

func (b base) tx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	return classify(op, b.store.WithTx(ctx, fn))
}

// New wires the coordinators together. Zero-valued options get the
// production defaults.
func New(store *repository.Store, cfg config.PipelineConfig, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Events == nil {
		opts.Events = nopPublisher{}
	}
	if opts.Variance == nil {
		opts.Variance = fare.NewUniformVariance()
	}
	if opts.IDs == nil {
		opts.IDs = uuidRoomIDs{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	b := base{store: store, cfg: cfg, log: opts.Logger}

	gathering := &GatheringCoordinator{base: b}
	pipeline := &TripPipeline{
		base:       b,
		clock:      opts.Clock,
		events:     opts.Events,
		variance:   opts.Variance,
		sessions:   map[string]*session{},
		recruiting: map[string][]func(){},
	}
	readiness := &ReadinessCoordinator{base: b, pipeline: pipeline}
	registry := &RoomRegistry{base: b, ids: opts.IDs, readiness: readiness, pipeline: pipeline}

	return &Service{
		Store:     store,
		Registry:  registry,
		Readiness: readiness,
		Gathering: gathering,
		Pipeline:  pipeline,
		Wallet:    &Wallet{base: b},
	}
}
