package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"viewings/backend/internal/config"
	"viewings/backend/internal/notify"
	"viewings/backend/internal/ops"
	"viewings/backend/internal/service/appointments"
	"viewings/backend/internal/service/availability"
	"viewings/backend/internal/service/policy"
	"viewings/backend/internal/service/scheduling"
	"viewings/backend/internal/store"
	"viewings/backend/internal/store/postgres"
	"viewings/backend/internal/store/rediscache"
	"viewings/backend/internal/telemetry"
	grpcTransport "viewings/backend/internal/transport/grpc"
)

const serviceName = "viewings-server"

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", serviceName),
	)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", serviceName),
	)
	slog.SetDefault(log)

	log.Info("starting",
		slog.String("grpc_addr", cfg.GRPCAddr),
		slog.String("http_addr", cfg.HTTPAddr),
		slog.String("log_level", cfg.LogLevel),
		slog.String("time_zone", cfg.TimeZone.String()),
		slog.String("notify_driver", cfg.NotifyDriver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:      cfg.OTelEnabled,
		ServiceName:  serviceName,
		OTLPEndpoint: cfg.OTelEndpoint,
		SampleRatio:  cfg.OTelSampleRatio,
	})
	if err != nil {
		log.Error("telemetry setup failed", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	db, err := postgres.Open(cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		os.Exit(1)
	}
	defer func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}()

	checks := []ops.ReadyCheck{{Name: "postgres", Check: postgres.ReadyCheck(db)}}

	var policies store.PolicyRepository = postgres.NewPolicyRepo(db)
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = rediscache.NewClient(rediscache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()
		policies = rediscache.NewPolicyRepo(policies, rdb, cfg.PolicyCacheTTL, log)
		checks = append(checks, ops.ReadyCheck{Name: "redis", Check: rediscache.ReadyCheck(rdb)})
		log.Info("policy cache enabled (redis)", slog.String("redis_addr", cfg.RedisAddr), slog.Duration("ttl", cfg.PolicyCacheTTL))
	}

	sender, closeSender, senderChecks := buildSender(cfg, log)
	defer closeSender()
	checks = append(checks, senderChecks...)

	dispatcher := notify.NewDispatcher(sender, log, notify.DispatcherConfig{
		Workers:     cfg.NotifyWorkers,
		QueueSize:   cfg.NotifyQueueSize,
		SendTimeout: cfg.NotifySendTimeout,
	})

	dir := postgres.NewDirectory(db)
	history := postgres.NewHistoryRepo(db)
	avail := availability.NewService(postgres.NewAvailabilityRepo(db), dir, cfg.TimeZone)
	gate := policy.NewGate(policies, history, dir, log)
	appts := appointments.NewService(postgres.NewAppointmentRepo(db), history, gate, avail, log)
	svc := scheduling.NewService(dir, avail, gate, appts, dispatcher, scheduling.Config{
		NoteMaxLength:  cfg.NoteMaxLength,
		InviteDuration: cfg.InviteDuration,
	}, log)

	limiter := grpcTransport.NewActorRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, log,
		grpcTransport.FullMethod("RequestAppointment"),
	)
	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			grpcTransport.DefaultRequestTimeoutInterceptor(cfg.GRPCRequestTimeout),
			limiter.UnaryInterceptor(),
		),
	)
	grpcTransport.RegisterSchedulingServer(grpcServer, grpcTransport.NewServer(svc, log))
	healthServer := health.NewServer()
	healthServer.SetServingStatus(grpcTransport.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", cfg.GRPCAddr))
		os.Exit(1)
	}

	opsServer := ops.NewServer(cfg.HTTPAddr, checks...)

	errCh := make(chan error, 2)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Info("grpc server started", slog.String("grpc_addr", cfg.GRPCAddr))
	log.Info("ops server started", slog.String("http_addr", cfg.HTTPAddr))

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("server stopped with error", slog.Any("err", err))
			exitCode = 1
		}
	}

	healthServer.Shutdown()
	shutdown(log, grpcServer, cfg.ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("ops server shutdown failed", slog.Any("err", err))
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.Warn("notification queue not drained", slog.Any("err", err))
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		log.Warn("telemetry shutdown failed", slog.Any("err", err))
	}

	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

// buildSender picks the notification transport named by notify.driver.
func buildSender(cfg config.Config, log *slog.Logger) (notify.Sender, func(), []ops.ReadyCheck) {
	switch cfg.NotifyDriver {
	case "smtp":
		log.Info("notifications via smtp", slog.String("smtp_host", cfg.SMTPHost), slog.Int("smtp_port", cfg.SMTPPort))
		return notify.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom), func() {}, nil
	case "kafka":
		brokers := notify.SplitBrokers(cfg.KafkaBrokers)
		w := notify.NewKafkaWriter(brokers)
		log.Info("notifications via kafka", slog.Any("brokers", brokers), slog.String("topic", cfg.KafkaTopic))
		closeWriter := func() {
			if err := w.Close(); err != nil {
				log.Warn("kafka writer close failed", slog.Any("err", err))
			}
		}
		return notify.NewKafkaSender(w, cfg.KafkaTopic), closeWriter, []ops.ReadyCheck{
			{Name: "kafka", Check: notify.KafkaReadyCheck(brokers)},
		}
	default:
		return notify.NewLogSender(log), func() {}, nil
	}
}

func shutdown(log *slog.Logger, s *grpc.Server, timeout time.Duration) {
	log.Info("shutting down grpc server", slog.Duration("timeout", timeout))

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-timer.C:
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.Stop()
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
