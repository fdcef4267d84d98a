// Command portalguard serves the village portal's guarded endpoints together
// with the rate limit admin API and Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vnykmshr/portalguard/internal/config"
	"github.com/vnykmshr/portalguard/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "portalguard:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, sync, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = sync() }()

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	tp, shutdownTracing, err := newTracerProvider(cfg.Tracing.Enabled)
	if err != nil {
		return err
	}

	opts, err := cfg.RedisOptions()
	if err != nil {
		return err
	}
	rdb := redis.NewClient(opts)

	a, err := newApp(cfg, log, rdb, tp)
	if err != nil {
		_ = rdb.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.start(ctx); err != nil {
		a.close(ctx)
		return fmt.Errorf("start scheduler: %w", err)
	}

	servers := []*http.Server{
		{Addr: cfg.Server.Addr, Handler: a.portalRouter(), ReadHeaderTimeout: 5 * time.Second},
		{Addr: cfg.Server.AdminAddr, Handler: a.adminRouter(), ReadHeaderTimeout: 5 * time.Second},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			log.Info("listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn("http shutdown", zap.String("addr", srv.Addr), zap.Error(err))
			}
		}
		a.close(shutdownCtx)
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn("tracer shutdown", zap.Error(err))
		}
		return nil
	})

	err = g.Wait()
	log.Info("stopped")
	return err
}
