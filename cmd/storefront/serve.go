package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/storefront/gateway"
	"github.com/example/storefront/pkg/discovery"
	grpcserver "github.com/example/storefront/pkg/grpc"
	"github.com/example/storefront/pkg/scheduler"
	"github.com/example/storefront/pkg/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, gRPC health service and reconciliation scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(a)
		},
	}
}

func serve(a *app) error {
	log := a.logger
	tokens, err := a.tokens()
	if err != nil {
		return err
	}

	deps := a.deps()
	products, err := service.NewProductService(a.cfg.Catalog.Source, deps)
	if err != nil {
		return err
	}

	checks := a.checks()
	gw := gateway.NewGateway(&a.cfg.Server, gateway.Services{
		Auth:     service.NewAuthService(deps, tokens),
		Products: products,
		Carts:    service.NewCartService(deps),
		Orders:   service.NewOrderService(deps),
		Payments: a.payments,
		Webhooks: service.NewWebhookService(a.payments, a.stripe),
		Audit:    a.audit,
		Metrics:  a.metrics,
		Checks:   checks,
	}, log)

	healthSrv := grpcserver.NewHealthServer(&a.cfg.GRPC, checks, log)

	var sched *scheduler.Scheduler
	if a.cfg.Scheduler.Enabled {
		reconciler := scheduler.NewReconciler(a.cfg.Scheduler, a.payments, a.metrics, log)
		sched, err = scheduler.New(a.cfg.Scheduler.Cron, reconciler, log)
		if err != nil {
			return err
		}
	}

	errCh := make(chan error, 2)
	go func() {
		if err := gw.Start(); err != nil {
			errCh <- err
		}
	}()
	go func() {
		if err := healthSrv.Start(); err != nil {
			errCh <- err
		}
	}()
	if sched != nil {
		sched.Start()
	}

	regCtx, cancelReg := context.WithCancel(context.Background())
	defer cancelReg()

	instance := &discovery.ServiceInstance{Name: a.cfg.Server.Name, Host: a.cfg.Server.Host, Port: a.cfg.Server.Port}
	var sd *discovery.ServiceDiscovery
	if len(a.cfg.Etcd.Endpoints) > 0 {
		sd, err = discovery.NewServiceDiscovery(&a.cfg.Etcd, log)
		if err != nil {
			log.Warn("Failed to connect to etcd, skipping registration", zap.Error(err))
		} else {
			defer sd.Close()
			if err := sd.Register(regCtx, instance); err != nil {
				log.Warn("Failed to register service", zap.Error(err))
			}
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		log.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case runErr = <-errCh:
		log.Error("Server failed", zap.Error(runErr))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if sd != nil {
		if err := sd.Deregister(ctx, instance); err != nil {
			log.Warn("Failed to deregister service", zap.Error(err))
		}
	}
	if err := gw.Shutdown(ctx); err != nil {
		log.Error("Gateway forced to shutdown", zap.Error(err))
	}
	healthSrv.Stop()
	if sched != nil {
		if err := sched.Stop(ctx); err != nil {
			log.Warn("Reconciliation run did not finish before shutdown", zap.Error(err))
		}
	}

	log.Info("Server exited")
	return runErr
}
