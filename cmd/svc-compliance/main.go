// Command svc-compliance serves the compliance RPC surface and runs the
// flight-request reconcilers and geo sync loops for one region.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/svc-compliance/internal/compliance"
	"github.com/signalsfoundry/svc-compliance/internal/config"
	"github.com/signalsfoundry/svc-compliance/internal/geo"
	"github.com/signalsfoundry/svc-compliance/internal/gis"
	"github.com/signalsfoundry/svc-compliance/internal/grpcapi"
	"github.com/signalsfoundry/svc-compliance/internal/logging"
	"github.com/signalsfoundry/svc-compliance/internal/observability"
	"github.com/signalsfoundry/svc-compliance/internal/reconciler"
	"github.com/signalsfoundry/svc-compliance/internal/region"
	"github.com/signalsfoundry/svc-compliance/internal/storage"
	"github.com/signalsfoundry/svc-compliance/internal/telemetry"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "svc-compliance",
		Short:         "Regional compliance intermediary for drone flight plans",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return err
			}
			log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			lis, err := net.Listen("tcp", cfg.GRPCListenAddr())
			if err != nil {
				log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.GRPCListenAddr()), logging.Err(err))
				return err
			}
			if err := run(ctx, cfg, log, lis); err != nil {
				log.Error(ctx, "compliance server exited", logging.Err(err))
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "optional YAML config file")
	return cmd
}

// publisher is what run needs from the message queue connection.
type publisher interface {
	telemetry.Publisher
	io.Closer
}

// dialPublisher is replaced in tests.
var dialPublisher = func(url string, log logging.Logger) (publisher, error) {
	p, err := telemetry.Dial(url, log)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// shutdownTimeout bounds how long in-flight RPCs and metrics scrapes get.
const shutdownTimeout = 5 * time.Second

// run wires every component and blocks until ctx is cancelled or a server
// fails. lis is owned by run.
func run(ctx context.Context, cfg config.Config, log logging.Logger, lis net.Listener) error {
	log = logging.OrNoop(log).With(logging.String("region", cfg.RegionCode))

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	rpcMetrics, err := observability.NewRPCCollector(reg)
	if err != nil {
		return fmt.Errorf("rpc metrics: %w", err)
	}
	loopMetrics, err := observability.NewLoopCollector(reg)
	if err != nil {
		return fmt.Errorf("loop metrics: %w", err)
	}

	backend, err := region.New(cfg.RegionCode, region.Options{ReviewPeriod: cfg.AuthorityReview(), Logger: log})
	if err != nil {
		return err
	}

	mq, err := dialPublisher(cfg.AMQPURL, log)
	if err != nil {
		return fmt.Errorf("message queue: %w", err)
	}
	defer closeQuietly(ctx, log, "message queue", mq)

	notifier, err := telemetry.NewNotifier(mq, cfg.TelemetryEncoding, log, loopMetrics)
	if err != nil {
		return err
	}

	planStore, releaseStore, err := openReconcilerStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeQuietly(ctx, log, "flight plan record store", planStore)
	defer closeQuietly(ctx, log, "flight release record store", releaseStore)

	gisClient, err := gis.Dial(cfg.GISAddr())
	if err != nil {
		return err
	}
	defer closeQuietly(ctx, log, "geospatial client", gisClient)

	cache := geo.NewCache(rpcMetrics)
	syncer := geo.NewSyncer(backend, gisClient, cache, geo.WithLogger(log), geo.WithMetrics(loopMetrics))

	plans, err := reconciler.NewPlanLoop(planStore, backend, cfg.FlightPlanInterval(), cfg.FlightPlanLookahead(), cfg.DecisionMemorySize,
		reconciler.WithLogger(log), reconciler.WithMetrics(loopMetrics))
	if err != nil {
		return err
	}
	releases, err := reconciler.NewReleaseLoop(releaseStore, backend, cfg.FlightReleaseInterval(), cfg.FlightReleaseLookahead(), cfg.DecisionMemorySize,
		reconciler.WithLogger(log), reconciler.WithMetrics(loopMetrics))
	if err != nil {
		return err
	}

	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			compliance.RecoveryUnaryServerInterceptor(log),
			compliance.RequestIDUnaryServerInterceptor(log),
			compliance.TracingUnaryServerInterceptor(),
			rpcMetrics.UnaryServerInterceptor(),
		),
	)
	grpcapi.RegisterComplianceServer(server, compliance.NewServer(backend, cache, notifier, log))

	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(server, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthSrv.SetServingStatus(grpcapi.ServiceName, healthpb.HealthCheckResponse_SERVING)

	metricsSrv := serveMetrics(cfg.MetricsAddr, rpcMetrics, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "starting compliance gRPC server", logging.String("addr", lis.Addr().String()))
		if err := server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error { return plans.Run(gctx) })
	g.Go(func() error { return releases.Run(gctx) })
	g.Go(func() error { return syncer.RunRestrictions(gctx, cfg.RefreshZonesInterval()) })
	g.Go(func() error { return syncer.RunWaypoints(gctx, cfg.RefreshWaypointsInterval()) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info(context.Background(), "shutting down compliance server")
		healthSrv.Shutdown()
		server.GracefulStop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		return nil
	})

	return g.Wait()
}

// openReconcilerStores opens one record-store connection per reconciler so
// the two loops never share a client.
func openReconcilerStores(ctx context.Context, cfg config.Config) (plans, releases storage.FlightPlanStore, err error) {
	plans, err = openStore(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("flight plan store: %w", err)
	}
	releases, err = openStore(ctx, cfg)
	if err != nil {
		_ = plans.Close()
		return nil, nil, fmt.Errorf("flight release store: %w", err)
	}
	return plans, releases, nil
}

// openStore selects the record-store backend.
func openStore(ctx context.Context, cfg config.Config) (storage.FlightPlanStore, error) {
	switch cfg.StorageBackend {
	case "postgres":
		store, err := storage.OpenPostgres(ctx, cfg.StorageDatabaseURL)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "grpc", "":
		client, err := storage.Dial(cfg.StorageAddr())
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", config.ErrInvalid, cfg.StorageBackend)
	}
}

func serveMetrics(addr string, collector *observability.RPCCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

func closeQuietly(ctx context.Context, log logging.Logger, what string, c io.Closer) {
	if err := c.Close(); err != nil {
		log.Warn(ctx, "close failed", logging.String("resource", what), logging.Err(err))
	}
}
