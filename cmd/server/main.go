package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/inkbytefo/oxis-xcord-sub000/internal/adapters/http"
	signalws "github.com/inkbytefo/oxis-xcord-sub000/internal/adapters/signal"
	"github.com/inkbytefo/oxis-xcord-sub000/internal/app"
	"github.com/inkbytefo/oxis-xcord-sub000/internal/auth"
	"github.com/inkbytefo/oxis-xcord-sub000/internal/config"
	"github.com/inkbytefo/oxis-xcord-sub000/internal/domain"
	"github.com/inkbytefo/oxis-xcord-sub000/internal/media"
	"github.com/inkbytefo/oxis-xcord-sub000/internal/observability/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	m := metrics.New()

	// The native engine bridge is deployment-specific; the loopback engine
	// keeps single-node and development setups runnable.
	var engine media.Engine = media.NewLocalEngine()

	pool, err := media.NewPool(ctx, engine, media.PoolOptions{
		Size:  cfg.WorkerCount,
		Grace: cfg.WorkerDeathGrace,
		Terminate: func() {
			log.Fatal().Msg("media worker died, exiting")
		},
		OnDeath: func(string) { m.WorkerDeaths.Inc() },
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to boot worker pool")
	}
	defer pool.Close()

	rooms := app.NewRoomManager(pool, app.RoomManagerOptions{
		CallTimeout: cfg.MediaCallTimeout,
		OnChange:    func(delta int) { m.RoomsActive.Add(float64(delta)) },
	})
	orch := &app.Orchestrator{
		Registry:     app.NewRegistry(),
		Rooms:        rooms,
		OnPeerChange: func(delta int) { m.PeersConnected.Add(float64(delta)) },
	}

	var store signalws.CounterStore
	if cfg.RedisAddr != "" {
		store = signalws.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, 2*time.Second)
		log.Info().Str("addr", cfg.RedisAddr).Msg("rate limiting against redis")
	}
	limiter := signalws.NewRateLimiter(store,
		signalws.Budget{Limit: cfg.JoinLimit, Window: cfg.JoinWindow},
		signalws.Budget{Limit: cfg.SignalLimit, Window: cfg.SignalWindow},
		func(class signalws.ActionClass) { m.RateLimited.WithLabelValues(string(class)).Inc() },
	)

	var verifier auth.Verifier
	if cfg.AuthURL != "" {
		verifier = auth.NewHTTPVerifier(cfg.AuthURL, cfg.AuthTimeout)
	} else {
		log.Warn().Msg("no auth_url configured, accepting any non-empty token")
		verifier = auth.VerifierFunc(func(_ context.Context, token string) (*auth.Identity, error) {
			if token == "" {
				return nil, domain.ErrAuthenticationFailed
			}
			sum := sha256.Sum256([]byte(token))
			id := hex.EncodeToString(sum[:8])
			return &auth.Identity{ID: domain.UserID(id), Username: "guest-" + id[:6]}, nil
		})
	}

	ctl := signalws.NewController(orch, verifier, limiter)
	ctl.ReadLimit = cfg.ReadLimit
	ctl.PingPeriod = cfg.PingPeriod

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Orch:       orch,
		Pool:       pool,
		Controller: ctl,
		Metrics:    m.Handler(),
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Int("workers", pool.Size()).Msg("voice server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
