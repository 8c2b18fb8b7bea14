package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/Dial/internal/adapters/capture"
	router "github.com/dkeye/Dial/internal/adapters/http"
	"github.com/dkeye/Dial/internal/adapters/rtc"
	sig "github.com/dkeye/Dial/internal/adapters/signal"
	"github.com/dkeye/Dial/internal/app"
	"github.com/dkeye/Dial/internal/app/orch"
	"github.com/dkeye/Dial/internal/config"
	"github.com/dkeye/Dial/internal/identity"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setLevel(cfg.LogLevel)
	cfg.Watch(func(next *config.Config) { setLevel(next.LogLevel) })

	self, err := identity.FromToken(cfg.Token, cfg.DisplayName, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("invalid identity token")
	}

	source, err := capture.New(cfg.MediaSource)
	if err != nil {
		log.Fatal().Err(err).Msg("media source")
	}
	media, err := rtc.New(source, rtc.DefaultWebRTCConfig(iceServers(cfg.ICEServers)))
	if err != nil {
		log.Fatal().Err(err).Msg("media adapter")
	}

	presence := app.NewPresence(self.ID)
	client := sig.NewClient(sig.Config{
		URL:            cfg.SignalURL,
		Token:          cfg.Token,
		ReadLimit:      cfg.ReadLimit,
		PingPeriod:     cfg.PingPeriod,
		ReconnectDelay: cfg.ReconnectDelay,
	}, presence)

	calls := orch.New(self, client, media, presence, orch.WithRingTimeout(cfg.RingTimeout))
	client.SetHandler(calls)

	r := router.SetupRouter(ctx, cfg, calls, presence, app.SimplePolicy{MaxDropped: 8})
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return calls.Run(gctx) })
	g.Go(func() error { return client.Run(gctx) })
	g.Go(func() error {
		log.Info().Str("addr", addr).Str("self", string(self.ID)).Msg("Dial started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("exited with error")
		os.Exit(1)
	}
	log.Info().Msg("Dial exited gracefully")
}

func setLevel(s string) {
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func iceServers(in []config.ICEServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(in))
	for _, s := range in {
		out = append(out, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return out
}
