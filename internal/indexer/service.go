package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/yibigame/levelindexer/internal/chain"
	"github.com/yibigame/levelindexer/internal/projector"
	"github.com/yibigame/levelindexer/internal/realtime"
	"github.com/yibigame/levelindexer/internal/store"
	"github.com/yibigame/levelindexer/internal/syncer"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// Options configures a Service.
type Options struct {
	Sync syncer.Config
	// ListenAddress is the health/status server address. Empty disables the
	// server in Run.
	ListenAddress string
	// Contract is reported on the status endpoint.
	Contract string
	Logger   *slog.Logger

	ProjectorOptions []projector.Option
	SyncerOptions    []syncer.Option
	RealtimeOptions  []realtime.Option
}

// Status is the outward health/debug view of the service.
type Status struct {
	Connected       bool    `json:"connected"`
	Syncing         bool    `json:"syncing"`
	LastSyncedBlock *uint64 `json:"lastSyncedBlock"`
	ContractAddress string  `json:"contractAddress,omitempty"`
}

// Service wires one chain source, one store and one projector into the two
// synchronization paths.
type Service struct {
	source   chain.Source
	syncer   *syncer.Coordinator
	realtime *realtime.Subscriber
	registry *prometheus.Registry

	listen   string
	contract string
	log      *slog.Logger
}

// New builds a service. The caller keeps ownership of source and backend.
func New(source chain.Source, backend store.Backend, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	applier := instrumentedApplier{next: projector.New(backend, source, logger, opts.ProjectorOptions...)}
	s := &Service{
		source:   source,
		syncer:   syncer.New(source, applier, backend, opts.Sync, logger, opts.SyncerOptions...),
		realtime: realtime.New(source, applier, logger, opts.RealtimeOptions...),
		listen:   opts.ListenAddress,
		contract: opts.Contract,
		log:      logger.With("component", "indexer"),
	}
	s.registry = newRegistry(s.Status)
	return s
}

// Start arms realtime delivery and then runs one backfill pass. Only a
// configuration error from arming is returned; an unreachable push endpoint is
// retried in the background and a failed pass is logged. Subscriptions live
// until ctx ends.
func (s *Service) Start(ctx context.Context) error {
	s.log.Info("starting realtime listeners")
	if err := s.realtime.Arm(ctx); err != nil {
		return err
	}

	s.log.Info("starting historical sync")
	if _, err := s.Backfill(ctx, nil); err != nil {
		s.log.Error("historical sync failed", "error", err)
		return nil
	}
	s.log.Info("historical sync finished")
	return nil
}

// Backfill runs one pass, optionally from an explicit start block.
func (s *Service) Backfill(ctx context.Context, from *int64) (syncer.Result, error) {
	res, err := s.syncer.Run(ctx, from)
	recordPass(res)
	return res, err
}

// Run starts the service and serves HTTP until ctx ends or the server fails.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if s.listen != "" {
		srv := &http.Server{Addr: s.listen, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			s.log.Info("http server listening", "addr", s.listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		if err := s.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	})

	return g.Wait()
}

// Status reports connectivity, pass activity and the last committed cursor.
func (s *Service) Status() Status {
	st := Status{
		Connected:       s.source.Connected(),
		Syncing:         s.syncer.Syncing(),
		ContractAddress: s.contract,
	}
	if b, ok := s.syncer.LastSyncedBlock(); ok {
		st.LastSyncedBlock = &b
	}
	return st
}
