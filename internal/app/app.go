// Package app wires a portal session together: HTTP clients, the local
// cart cache, the risk scheduler, and the synchronization engine, driven by
// a line-oriented console loop.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/cartsync/internal/cache"
	"github.com/xenking/cartsync/internal/engine"
	"github.com/xenking/cartsync/internal/portal"
	"github.com/xenking/cartsync/internal/risk"
	"github.com/xenking/cartsync/pkg/health"
	"github.com/xenking/cartsync/pkg/httpclient"
)

// Run creates all dependencies and runs the interactive cart session until
// EOF or signal. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Starting session",
		zap.String("portal", cfg.PortalURL),
		zap.String("risk", cfg.RiskURL),
	)

	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: httpclient.Wrap(nil,
			httpclient.RequestID(),
			httpclient.Instrument(m.TracerProvider(), m.MeterProvider()),
			httpclient.LogRequests(),
		),
	}

	cartClient, err := portal.NewClient(portal.Config{
		BaseURL: cfg.PortalURL,
		Token:   cfg.APIToken,
		Client:  httpClient,
	})
	if err != nil {
		return errors.Wrap(err, "create portal client")
	}

	cartCache := cache.New(lg.Named("cache"))

	opts := []engine.Option{}
	var scheduler *risk.Scheduler
	if cfg.RiskURL != "" {
		riskClient, err := portal.NewRiskClient(portal.RiskConfig{
			BaseURL:         cfg.RiskURL,
			CustomerNumber:  cfg.CustomerNumber,
			Plant:           cfg.Risk.Plant,
			StorageLocation: cfg.Risk.StorageLocation,
			Client:          httpClient,
		})
		if err != nil {
			return errors.Wrap(err, "create risk client")
		}
		scheduler = risk.New(riskClient, cartCache, risk.WithBatchSize(cfg.Risk.BatchSize))
		defer scheduler.Close()
		opts = append(opts, engine.WithRiskTrigger(scheduler))
	}

	eng := engine.New(cartCache, cartClient, opts...)

	// Connectivity monitoring. Probes never carry the session token; a
	// 401 from the portal still proves the service is up.
	probeClient := &http.Client{Timeout: cfg.HTTPTimeout}
	monitor := health.New()
	monitor.Add("portal", 5*time.Second, health.EndpointCheck(probeClient, cfg.PortalURL+"/customer/cart/"))
	if cfg.RiskURL != "" {
		monitor.Add("risk", 5*time.Second, health.EndpointCheck(probeClient, cfg.RiskURL+"/"))
	}
	monitor.Start(ctx, cfg.ProbeInterval)
	defer monitor.Stop()

	// Hydrate from the remote cart; a fresh session starts empty if the
	// portal is unreachable, mutations will surface errors anyway.
	if err := eng.Refresh(ctx); err != nil {
		lg.Warn("Could not hydrate cart from portal", zap.Error(err))
	}

	return runConsole(ctx, lg, eng, monitor)
}
