package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/orderflow/orderflow/internal/gateway"
	"github.com/orderflow/orderflow/pkg/config"
	"github.com/orderflow/orderflow/pkg/logging"
	"github.com/orderflow/orderflow/pkg/shutdown"
	"github.com/orderflow/orderflow/pkg/tracing"
)

func main() {
	log := logging.New("gateway")

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	cfg, err := config.Load[config.Gateway]()
	if err != nil {
		log.Error("config load failed", "err", err)
		os.Exit(1)
	}

	tp, err := tracing.Init(ctx, "gateway", cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	client := &http.Client{Timeout: 15 * time.Second}
	proxy, err := gateway.NewProxy(log, client, cfg.OrderService, cfg.UserServices)
	if err != nil {
		log.Error("gateway config invalid", "err", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      proxy.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 20 * time.Second,
	}
	go func() {
		log.Info("gateway listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("gateway shutdown complete")
}
