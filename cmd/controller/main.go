// Command controller runs the autonomic queue-depth controller as a single
// process: the Monitoring Worker's tick loop guarded by etcd leader
// election, plus the read-only status API, consolidating what the teacher
// split across cmd/scheduler, cmd/executor and cmd/api into one bootstrap
// (this system has no job queue to split a producer from a consumer of).
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	config "acaqueue/configs"
	"acaqueue/pkg/audit"
	"acaqueue/pkg/auth"
	"acaqueue/pkg/broker"
	"acaqueue/pkg/containerapp"
	"acaqueue/pkg/coordination/etcd"
	"acaqueue/pkg/engine"
	"acaqueue/pkg/executor"
	"acaqueue/pkg/logger"
	"acaqueue/pkg/notify"
	"acaqueue/pkg/observability/tracing"
	"acaqueue/pkg/schedule"
	"acaqueue/pkg/statusapi"
	"acaqueue/pkg/store"
	"acaqueue/pkg/store/rediscache"
	"acaqueue/pkg/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if _, err := logger.Init(logger.DefaultConfig("acaqueue-controller")); err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	log := logger.Get()
	log.Info("controller starting up", zap.Int("mappings", len(cfg.Mappings)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	connStr := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)
	pg, err := store.NewPostgresStore(connStr)
	if err != nil {
		log.Fatal("postgres store", zap.Error(err))
	}

	cache, err := rediscache.New(cfg.RedisAddr, pg, 30*time.Second)
	if err != nil {
		log.Fatal("redis cache", zap.Error(err))
	}
	defer cache.Close()

	coord, err := etcd.NewCoordinator(cfg.EtcdEndpoints)
	if err != nil {
		log.Fatal("etcd coordinator", zap.Error(err))
	}
	defer coord.Close()

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "acaqueue-controller"
	}
	election := coord.NewElection("acaqueue-controller", hostname)

	prober, err := broker.NewRabbitProber(broker.Credentials{
		ServerURL: cfg.Broker.ServerURL,
		Username:  cfg.Broker.Username,
		Password:  cfg.Broker.Password,
	})
	if err != nil {
		log.Fatal("broker prober", zap.Error(err))
	}
	defer prober.Close()

	driver, err := containerapp.NewSwarmDriver()
	if err != nil {
		log.Fatal("container-app driver", zap.Error(err))
	}
	defer driver.Close()

	var trail audit.Trail = audit.NewNoopTrail()
	if cfg.Audit.Bucket != "" {
		s3Trail, err := audit.NewS3Trail(audit.S3TrailConfig{
			Bucket:          cfg.Audit.Bucket,
			Prefix:          cfg.Audit.Prefix,
			Region:          cfg.Audit.Region,
			Endpoint:        cfg.Audit.Endpoint,
			AccessKeyID:     cfg.Audit.AccessKeyID,
			SecretAccessKey: cfg.Audit.SecretAccessKey,
		})
		if err != nil {
			log.Fatal("audit trail", zap.Error(err))
		}
		trail = s3Trail
	}

	notifySink := notify.NewSMTPSink(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})

	exec := executor.New(driver, notifySink, trail, executor.Config{CooldownMinutes: cfg.CooldownMinutes})
	evaluator := schedule.NewEvaluator()

	tracerProvider, err := tracing.Init(ctx, tracing.DefaultConfig("acaqueue-controller"))
	if err != nil {
		log.Warn("tracing disabled: init failed", zap.Error(err))
		tracerProvider = nil
	} else {
		defer tracerProvider.Shutdown(context.Background())
	}

	w := worker.New(cfg.Mappings, prober, evaluator, exec, cache, notifySink, driver, election, tracerProvider, worker.Config{
		PollInterval: time.Duration(cfg.PollIntervalSeconds) * time.Second,
		EngineConfig: engine.Config{
			IdleTimeoutMinutes:                cfg.IdleTimeoutMinutes,
			RestartVerificationTimeoutMinutes: cfg.RestartVerificationTimeoutMinutes,
			FirstAlertMinutes:                 cfg.MessageProcessingAlerts.FirstAlertMinutes,
			FollowupIntervalMinutes:           cfg.MessageProcessingAlerts.FollowupIntervalMinutes,
			MaxAlerts:                         cfg.MessageProcessingAlerts.MaxAlerts,
		},
		AlertEmails: cfg.MessageProcessingAlerts.AlertEmails,
	})

	go w.Run(ctx)

	// AuthMode selects exactly one of the two auth shapes (§9 Open
	// Questions); only the selected one is constructed, so
	// AuthMiddleware's fallback-to-the-other-method path is never reachable
	// with both live at once.
	var jwtService *auth.JWTService
	var apiKeyStore auth.APIKeyStore
	if cfg.AuthEnabled {
		switch cfg.AuthMode {
		case "apikey":
			authRedis := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
			if err := authRedis.Ping(ctx).Err(); err != nil {
				log.Fatal("api key store redis", zap.Error(err))
			}
			apiKeyStore = auth.NewRedisAPIKeyStore(authRedis)
		default:
			jwtService, err = auth.NewJWTService(auth.JWTConfig{
				SecretKey:     cfg.JWTSecret,
				Issuer:        cfg.JWTIssuer,
				TokenExpiry:   15 * time.Minute,
				RefreshExpiry: 24 * time.Hour,
			})
			if err != nil {
				log.Fatal("jwt service", zap.Error(err))
			}
		}
	}

	apiServer := statusapi.NewServer(statusapi.Config{
		Port:        cfg.APIPort,
		Store:       cache,
		Election:    election,
		Mappings:    cfg.Mappings,
		AuthEnabled: cfg.AuthEnabled,
		JWTService:  jwtService,
		APIKeyStore: apiKeyStore,
	})
	go func() {
		if err := apiServer.Start(); err != nil {
			log.Error("status api server error", zap.Error(err))
		}
	}()

	log.Info("controller started", zap.String("api_port", cfg.APIPort))

	sig := <-sigChan
	log.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("status api shutdown error", zap.Error(err))
	}

	cancel()
	log.Info("shutdown complete")
}
