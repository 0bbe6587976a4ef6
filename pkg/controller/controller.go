// Copyright 2025 Philipp Hossner
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package controller wires the application function together.
//
// Startup order:
//  1. Create the EventBus and every component (components subscribe here,
//     so nothing published during startup is lost)
//  2. Start components and HTTP servers in an errgroup
//  3. Release the bus and register the configured application servers
//  4. Run until the context is cancelled, then drain
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"msaf/pkg/appserver"
	"msaf/pkg/controller/appserversync"
	"msaf/pkg/controller/certwatcher"
	"msaf/pkg/controller/commentator"
	"msaf/pkg/controller/debug"
	"msaf/pkg/controller/events"
	"msaf/pkg/controller/m1api"
	"msaf/pkg/controller/metrics"
	"msaf/pkg/controller/resync"
	coreconfig "msaf/pkg/core/config"
	busevents "msaf/pkg/events"
	"msaf/pkg/introspection"
	pkgmetrics "msaf/pkg/metrics"
	"msaf/pkg/provisioning"
	"msaf/pkg/sbi"
)

const (
	// ComponentName is reported in the Server header of every M1 response.
	ComponentName = "msaf"

	shutdownTimeout = 30 * time.Second
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

// application holds every component of one controller run.
type application struct {
	cfg    *coreconfig.Config
	logger *slog.Logger

	bus      *busevents.EventBus
	registry *prometheus.Registry

	sessions     *provisioning.Store
	certificates *provisioning.CertificateStore

	sync        *appserversync.Component
	resync      *resync.Monitor
	certWatcher *certwatcher.Watcher
	m1          *m1api.Server
	commentator *commentator.EventCommentator
	metrics     *metrics.Component
	eventBuffer *debug.EventBuffer

	introspection *introspection.Registry
	metricsServer *pkgmetrics.Server
	debugServer   *introspection.Server
}

// Run starts the application function and blocks until ctx is cancelled or
// a component fails. debugPort overrides controller.debug_port when positive.
func Run(ctx context.Context, cfg *coreconfig.Config, debugPort int, logger *slog.Logger) error {
	if debugPort <= 0 {
		debugPort = cfg.Controller.DebugPort
	}

	app := newApplication(cfg, debugPort, logger)
	return app.run(ctx)
}

func newApplication(cfg *coreconfig.Config, debugPort int, logger *slog.Logger) *application {
	app := &application{
		cfg:      cfg,
		logger:   logger,
		bus:      busevents.NewEventBus(100),
		registry: prometheus.NewRegistry(),
	}

	app.metrics = metrics.NewComponent(metrics.New(app.registry), app.bus)
	app.metrics.Start()

	app.sessions = provisioning.NewStore(logger)
	app.certificates = provisioning.NewCertificateStore(cfg.MSAF.CertificatesDir)

	app.sync = appserversync.New(app.bus, app.sessions, app.certificates, appserversync.Config{
		AssignmentPolicy:     assignmentPolicy(cfg.MSAF.AssignmentPolicy),
		RequestTimeout:       cfg.M3.GetRequestTimeout(),
		RetryInitialInterval: cfg.M3.GetRetryInitialInterval(),
		RetryMaxInterval:     cfg.M3.GetRetryMaxInterval(),
		PurgeTimeout:         cfg.M1.GetPurgeTimeout(),
	}, logger)

	app.resync = resync.New(app.bus, logger, cfg.M3.GetResyncInterval())
	app.certWatcher = certwatcher.New(app.bus, app.certificates, logger, 0)

	app.m1 = m1api.New(m1api.Options{
		ListenAddress:      cfg.M1.ListenAddress,
		CacheControlMaxAge: cfg.M1.CacheControlMaxAge,
		Service: sbi.Service{
			ServerName: cfg.MSAF.ServerName,
			Component:  ComponentName,
			Version:    Version,
		},
	}, app.sessions, app.certificates, app.sync, logger)

	app.commentator = commentator.NewEventCommentator(app.bus, logger, commentator.DefaultBufferSize)
	app.eventBuffer = debug.NewEventBuffer(1000, app.bus)

	app.introspection = introspection.NewRegistry()
	debug.RegisterVariables(app.introspection, &stateProvider{cfg: cfg, sync: app.sync, sessions: app.sessions}, app.eventBuffer)

	if cfg.Controller.MetricsPort > 0 {
		app.metricsServer = pkgmetrics.NewServer(fmt.Sprintf(":%d", cfg.Controller.MetricsPort), app.registry, logger)
	}
	if debugPort > 0 {
		app.debugServer = introspection.NewServer(fmt.Sprintf(":%d", debugPort), app.introspection, logger)
	}

	return app
}

func (a *application) run(ctx context.Context) error {
	a.logger.Info("Starting application function",
		"version", Version,
		"server_name", a.cfg.MSAF.ServerName,
		"application_servers", len(a.cfg.MSAF.ApplicationServers))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(runCtx)

	g.Go(func() error { return a.sync.Start(gCtx) })
	g.Go(func() error { return a.resync.Start(gCtx) })
	g.Go(func() error { return a.commentator.Start(gCtx) })
	g.Go(func() error { return a.metrics.Run(gCtx) })
	g.Go(func() error { return a.eventBuffer.Start(gCtx) })
	g.Go(func() error { return a.certWatcher.Start(gCtx) })
	g.Go(func() error { return a.m1.Start(gCtx) })

	if a.metricsServer != nil {
		g.Go(func() error { return a.metricsServer.Start(gCtx) })
		a.logger.Info("Metrics HTTP server started", "address", a.metricsServer.Addr(), "endpoint", "/metrics")
	}
	if a.debugServer != nil {
		g.Go(func() error { return a.debugServer.Start(gCtx) })
		a.logger.Info("Debug HTTP server started", "address", a.debugServer.Addr())
	} else {
		a.logger.Debug("Debug HTTP server disabled (port=0)")
	}

	a.bus.Start()

	if err := a.registerApplicationServers(gCtx); err != nil {
		cancel()
		groupErr := waitForGoroutinesToFinish(g, a.logger, "Startup failure")
		if groupErr != nil && !errors.Is(groupErr, context.Canceled) {
			return groupErr
		}
		return err
	}

	a.bus.Publish(events.NewControllerStartedEvent(len(a.cfg.MSAF.ApplicationServers)))

	<-gCtx.Done()

	reason := "context cancelled"
	if ctx.Err() == nil {
		reason = "component failure"
	}
	a.bus.Publish(events.NewControllerShutdownEvent(reason))

	cancel()
	err := waitForGoroutinesToFinish(g, a.logger, "Shutdown")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *application) registerApplicationServers(ctx context.Context) error {
	for _, as := range a.cfg.MSAF.ApplicationServers {
		server := appserver.ApplicationServer{
			CanonicalHostname:   as.CanonicalHostname,
			URLPathPrefixFormat: as.URLPathPrefixFormat,
			M3Port:              as.M3Port,
		}
		if err := a.sync.RegisterApplicationServer(ctx, server); err != nil {
			return fmt.Errorf("failed to register application server %s: %w", as.CanonicalHostname, err)
		}
	}
	return nil
}

func assignmentPolicy(policy string) string {
	if policy == coreconfig.AssignmentPolicyAll {
		return appserversync.PolicyAll
	}
	return appserversync.PolicyFirst
}

// waitForGoroutinesToFinish waits for the errgroup with a bounded timeout and
// returns the group's error, if any.
func waitForGoroutinesToFinish(errGroup *errgroup.Group, logger *slog.Logger, prefix string) error {
	logger.Info(fmt.Sprintf("Waiting for goroutines to finish (%s)", strings.ToLower(prefix)))

	done := make(chan error, 1)
	go func() {
		done <- errGroup.Wait()
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn(fmt.Sprintf("Goroutines finished with error during %s", strings.ToLower(prefix)), "error", err)
		} else {
			logger.Info("All goroutines finished gracefully")
		}
		return err
	case <-time.After(shutdownTimeout):
		logger.Warn(fmt.Sprintf("%s timeout exceeded (%s), some goroutines may not have finished", prefix, shutdownTimeout))
		return nil
	}
}
