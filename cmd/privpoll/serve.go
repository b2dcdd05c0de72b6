package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cmwaters/privpoll"
	"github.com/cmwaters/privpoll/api"
	"github.com/cmwaters/privpoll/internal/config"
	"github.com/cmwaters/privpoll/network"
	"github.com/cmwaters/privpoll/pkg/homomorphic"
	"github.com/cmwaters/privpoll/poll"
	"github.com/cmwaters/privpoll/store/badger"
)

const shutdownTimeout = 30 * time.Second

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the poll engine behind the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromContext(cmd.Context())
			logger := commonRun(cfg)
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	secret, err := homomorphic.LoadSecret(cfg.KeyFile)
	if err != nil {
		return fmt.Errorf("loading key (run keygen first): %w", err)
	}
	scheme := homomorphic.NewScheme(secret, cfg.MaxCount)
	publicKey, err := homomorphic.EncodePublic(scheme.PublicKey())
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store, err := badger.New(
		badger.WithDataDir(cfg.DataDir),
		badger.WithLogger(logger.With().Str("module", "store").Logger()),
		badger.WithPromRegistry(registry),
	)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("closing store")
		}
	}()

	bus := poll.NewEventBus(registry, logger.With().Str("module", "events").Logger())
	defer bus.Stop()

	params := poll.DefaultParameters()
	params.MaxDuration = cfg.MaxDuration
	engine, err := poll.New(scheme, poll.Identity(cfg.Owner),
		poll.WithStore(store),
		poll.WithPublisher(bus),
		poll.WithPromRegistry(registry),
		poll.WithParameters(params),
		poll.WithLogger(logger.With().Str("module", "engine").Logger()),
	)
	if err != nil {
		return err
	}
	if err := engine.RestoreGrants(); err != nil {
		return err
	}

	if len(cfg.P2PListenAddrs) > 0 {
		closeGossip, err := startGossip(ctx, cfg, bus, logger.With().Str("module", "p2p").Logger())
		if err != nil {
			return err
		}
		defer closeGossip()
	}

	apiServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewServer(engine, api.WithPublicKey(publicKey), api.WithLogger(logger)).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	for _, srv := range []*http.Server{apiServer, metricsServer} {
		go func(srv *http.Server) {
			logger.Info().Str("addr", srv.Addr).Msg("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}(srv)
	}

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err = <-errCh:
		logger.Error().Err(err).Msg("server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(err, apiServer.Shutdown(shutdownCtx), metricsServer.Shutdown(shutdownCtx))
}

// startGossip joins the gossip topic, forwards every local event to it and
// logs events received from peers.
func startGossip(ctx context.Context, cfg *config.Config, bus *poll.EventBus, logger zerolog.Logger) (func(), error) {
	h, err := libp2p.New(libp2p.ListenAddrStrings(cfg.P2PListenAddrs...))
	if err != nil {
		return nil, fmt.Errorf("starting libp2p host: %w", err)
	}
	received := network.NotifieeFunc(func(_ context.Context, msg *network.Message) error {
		evt, err := msg.Event()
		if err != nil {
			return err
		}
		logger.Debug().Str("type", string(evt.Type)).Interface("data", evt.Data).Msg("event received")
		return nil
	})
	gossip, err := privpoll.NewGossip(ctx, h, cfg.GossipTopic, bus, received, logger)
	if err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("joining gossip: %w", err)
	}

	connectPeers(ctx, h, cfg.P2PPeers, logger)
	logger.Info().Str("peer_id", h.ID().String()).Strs("addrs", cfg.P2PListenAddrs).Msg("gossip started")

	return func() {
		if err := gossip.Close(); err != nil {
			logger.Error().Err(err).Msg("closing gossip")
		}
		if err := h.Close(); err != nil {
			logger.Error().Err(err).Msg("closing libp2p host")
		}
	}, nil
}

func connectPeers(ctx context.Context, h host.Host, peers []string, logger zerolog.Logger) {
	for _, addr := range peers {
		info, err := peer.AddrInfoFromString(addr)
		if err != nil {
			logger.Error().Err(err).Str("addr", addr).Msg("invalid peer address")
			continue
		}
		if err := h.Connect(ctx, *info); err != nil {
			logger.Info().Err(err).Str("peer", info.ID.String()).Msg("connecting to peer")
		}
	}
}
