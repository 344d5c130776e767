package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/polartar/vtvl-engine/internal/chain"
	"github.com/polartar/vtvl-engine/internal/config"
	"github.com/polartar/vtvl-engine/internal/dashboard"
	"github.com/polartar/vtvl-engine/internal/event"
	"github.com/polartar/vtvl-engine/internal/lifecycle"
	"github.com/polartar/vtvl-engine/internal/logger"
	"github.com/polartar/vtvl-engine/internal/multisig"
	"github.com/polartar/vtvl-engine/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)

	go func() {
		cfg, err := config.Load()
		if err != nil {
			errCh <- err
			return
		}

		logger.Initialize(logger.Configuration{
			LogFile:   cfg.LogFile,
			ErrorFile: cfg.ErrorFile,
			Level:     cfg.LogLevel,
			Console:   cfg.Console,
		})
		defer logger.Sync()

		registry := prometheus.NewRegistry()
		bus := event.NewBus(registry)

		store, err := storage.NewSqliteStorage(cfg.DatabasePath, bus)
		if err != nil {
			errCh <- err
			return
		}

		client, err := chain.NewClient(cfg)
		if err != nil {
			errCh <- err
			return
		}
		multisigWallet, err := chain.NewMultisigWallet(client, cfg.MultisigAddress)
		if err != nil {
			errCh <- err
			return
		}
		contract, err := chain.NewVestingContractClient(client, cfg.VestingContractAddress)
		if err != nil {
			errCh <- err
			return
		}
		token, err := chain.NewTokenClient(client, cfg.TokenMasterAddress)
		if err != nil {
			errCh <- err
			return
		}

		coordinator := multisig.NewCoordinator(multisigWallet)
		engine := lifecycle.NewEngine(store, coordinator, contract, token)

		ec := lifecycle.ExecutionContext{
			SignerAddress:  client.SignerAddress(),
			ChainID:        cfg.ChainID,
			OrganizationID: cfg.OrganizationID,
		}

		go serveMetrics(cfg.MetricsAddr, registry)

		synchronizer := dashboard.NewSynchronizer(store, engine, bus, ec, cfg.SyncInterval, registry)
		if err := synchronizer.Run(ctx); err != nil && ctx.Err() == nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		fmt.Printf("stopping on error: %v\n", err)
		cancel()
	case <-waitForInterrupt():
		fmt.Println("interrupt received")
		cancel()
	}
}

func serveMetrics(addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics listener stopped", zap.Error(err))
	}
}

func waitForInterrupt() <-chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	return sigCh
}
