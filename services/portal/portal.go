// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package portal assembles the Sanjesh ticketing and transfer portal.
//
// New wires the document store, token issuer, role policy, audit log,
// attachment store, metrics, tracing and routes into one HTTP service.
// Callers only need a Config:
//
//	cfg, err := portal.LoadConfig("sanjesh.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc, err := portal.New(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close()
//	err = svc.Run(ctx)
//
// Authentication, authorization and audit can be replaced through
// extensions.ServiceOptions; nil fields fall back to the built-ins.
package portal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/extensions"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/logging"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/audit"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/auth"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/handlers"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/middleware"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/observability"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/routes"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/storage"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/stores"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/uploads"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/web"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ServiceName identifies the portal in traces and logs.
const ServiceName = "sanjesh-portal"

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// Service is a runnable portal instance.
type Service interface {
	// Run listens on the configured port until ctx is cancelled, then
	// shuts the server down gracefully.
	Run(ctx context.Context) error

	// Serve is Run on an existing listener.
	Serve(ctx context.Context, ln net.Listener) error

	// Router exposes the engine, mainly for tests.
	Router() *gin.Engine

	// Stores exposes the collections, for the CLI and tests.
	Stores() *stores.Stores

	// Tokens exposes the token issuer.
	Tokens() *auth.TokenIssuer

	// Close releases the store, the upload backend, the tracer and the
	// log file. Safe to call more than once.
	Close() error
}

type service struct {
	config Config
	opts   extensions.ServiceOptions
	logger *logging.Logger

	db       *storage.DB
	stores   *stores.Stores
	tokens   *auth.TokenIssuer
	files    uploads.Store
	tempDir  string
	registry *prometheus.Registry
	metrics  *observability.PortalMetrics
	router   *gin.Engine

	tracerCleanup func(context.Context)
	closeOnce     sync.Once
	closeErr      error
}

// New builds a portal service from cfg.
//
// # Description
//
// Opens the document store, builds the token issuer and default
// providers, opens the attachment backend, registers metrics, starts
// the tracer when an OTLP endpoint is configured and mounts every
// route. On failure everything opened so far is closed again.
//
// # Inputs
//
//   - cfg: Service configuration. Defaults are applied to zero fields.
//   - opts: Optional extension overrides. Nil, or nil fields, select the
//     JWT auth provider, the role policy and the store-backed audit log.
//
// # Outputs
//
//   - Service: Ready to Run. The caller must Close it.
//   - error: Non-nil when the config is invalid or a dependency fails
//     to open.
func New(cfg Config, opts *extensions.ServiceOptions) (Service, error) {
	cfg = applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &service{config: cfg}
	if opts != nil {
		s.opts = *opts
	}

	level, _ := logging.ParseLevel(cfg.Log.Level)
	s.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Log.Dir,
		Service: "portal",
		JSON:    cfg.Log.JSON,
	})

	if err := s.init(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *service) init() error {
	gin.SetMode(s.config.GinMode)
	handlers.RegisterValidators()

	if s.config.OTelEndpoint != "" {
		cleanup, err := s.initTracer()
		if err != nil {
			return fmt.Errorf("failed to set up tracing: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	if err := s.initStore(); err != nil {
		return err
	}

	tokens, err := auth.NewTokenIssuer(s.config.TokenConfig())
	if err != nil {
		return fmt.Errorf("failed to create token issuer: %w", err)
	}
	s.tokens = tokens

	if s.opts.AuthProvider == nil {
		s.opts.AuthProvider = auth.NewJWTAuthProvider(tokens, s.stores.Users)
	}
	if s.opts.AuthzProvider == nil {
		s.opts.AuthzProvider = auth.NewRoleAuthzProvider(nil)
	}
	if s.opts.AuditLogger == nil {
		s.opts.AuditLogger = audit.NewStoreLogger(s.stores.Audit, s.logger)
	}

	if err := s.initUploads(); err != nil {
		return err
	}

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = observability.NewMetrics(s.registry)

	return s.initRouter()
}

func (s *service) initStore() error {
	if s.config.InMemory {
		s.logger.Warn("Using in-memory store, data is lost on exit")
	}
	db, err := OpenStore(s.config, s.logger)
	if err != nil {
		return err
	}
	s.db = db
	s.stores = stores.New(db)
	s.logger.Info("Document store opened", "path", db.Path(), "in_memory", db.InMemory())
	return nil
}

// OpenStore opens the document store described by cfg, for commands
// that need the data without the HTTP service. The caller closes it.
func OpenStore(cfg Config, logger *logging.Logger) (*storage.DB, error) {
	cfg = applyConfigDefaults(cfg)

	var storeCfg storage.Config
	if cfg.InMemory {
		storeCfg = storage.InMemoryConfig()
	} else {
		storeCfg = storage.DefaultConfig(cfg.DataDir)
	}
	if logger != nil {
		storeCfg.Logger = logger.Slog()
	}

	db, err := storage.Open(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return db, nil
}

func (s *service) initUploads() error {
	switch s.config.Uploads.Backend {
	case uploads.BackendGCS:
		store, err := uploads.NewGCSStore(context.Background(), uploads.GCSConfig{
			Bucket:          s.config.Uploads.GCSBucket,
			Prefix:          s.config.Uploads.GCSPrefix,
			CredentialsFile: s.config.Uploads.GCSCredentialsFile,
		})
		if err != nil {
			return err
		}
		s.files = store
		s.logger.Info("Attachments stored in Cloud Storage", "bucket", s.config.Uploads.GCSBucket)
	default:
		dir := s.config.Uploads.Dir
		if dir == "" {
			tmp, err := os.MkdirTemp("", "sanjesh-uploads-")
			if err != nil {
				return fmt.Errorf("failed to create upload directory: %w", err)
			}
			s.tempDir = tmp
			dir = tmp
		}
		store, err := uploads.NewDiskStore(dir)
		if err != nil {
			return err
		}
		s.files = store
		s.logger.Info("Attachments stored on disk", "dir", dir)
	}
	return nil
}

// initTracer exports spans to the configured OTLP gRPC collector and
// returns a function that flushes and stops the exporter.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceProvider.Shutdown(ctx); err != nil {
			s.logger.Error("failed to shut down tracer provider", "error", err)
		}
		_ = conn.Close()
	}, nil
}

func (s *service) initRouter() error {
	tmpl, err := web.Templates()
	if err != nil {
		return fmt.Errorf("failed to parse templates: %w", err)
	}

	s.router = gin.New()
	if err := s.router.SetTrustedProxies(s.config.TrustedProxies); err != nil {
		return fmt.Errorf("failed to set trusted proxies: %w", err)
	}
	s.router.SetHTMLTemplate(tmpl)
	s.router.Use(
		gin.Recovery(),
		otelgin.Middleware(ServiceName),
		middleware.RequestID(),
		middleware.AccessLog(s.logger, s.metrics),
	)

	policy := uploads.DefaultPolicy()
	policy.MaxBytes = s.config.Uploads.MaxBytes

	deps := &handlers.Deps{
		Stores:        s.stores,
		Tokens:        s.tokens,
		Authz:         s.opts.AuthzProvider,
		Audit:         s.opts.AuditLogger,
		Uploads:       s.files,
		Policy:        policy,
		Metrics:       s.metrics,
		Logger:        s.logger,
		SecureCookies: s.config.SecureCookies,
	}

	routeOpts := routes.Options{
		AuthProvider:  s.opts.AuthProvider,
		AuthzProvider: s.opts.AuthzProvider,
		LoginLimiter:  middleware.NewIPRateLimiter(s.config.LoginRatePerMinute, s.config.LoginBurst),
	}
	if s.config.EnableMetrics {
		routeOpts.MetricsHandler = promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
	}

	routes.SetupRoutes(s.router, deps, routeOpts)
	return nil
}

// Run implements Service.
func (s *service) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve implements Service.
func (s *service) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Starting portal server", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		s.logger.Info("Shutting down portal server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *service) Router() *gin.Engine {
	return s.router
}

func (s *service) Stores() *stores.Stores {
	return s.stores
}

func (s *service) Tokens() *auth.TokenIssuer {
	return s.tokens
}

// Close implements Service.
func (s *service) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		ctx := context.Background()

		if s.opts.AuditLogger != nil {
			if err := s.opts.AuditLogger.Flush(ctx); err != nil {
				errs = append(errs, fmt.Errorf("flush audit log: %w", err))
			}
		}
		if s.files != nil {
			if err := s.files.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close upload store: %w", err))
			}
		}
		if s.tempDir != "" {
			if err := os.RemoveAll(s.tempDir); err != nil {
				errs = append(errs, fmt.Errorf("remove upload directory: %w", err))
			}
		}
		if s.db != nil {
			if err := s.db.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close store: %w", err))
			}
		}
		if s.tracerCleanup != nil {
			s.tracerCleanup(ctx)
		}
		if s.logger != nil {
			if err := s.logger.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close log file: %w", err))
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

var _ Service = (*service)(nil)
