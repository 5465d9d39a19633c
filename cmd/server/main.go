package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dianping/internal/cache"
	"dianping/internal/config"
	"dianping/internal/database"
	"dianping/internal/middleware"
	"dianping/internal/queue"
	"dianping/internal/router"
	"dianping/internal/service"
	"dianping/internal/session"
	kv "dianping/pkg/redis"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		logrus.WithError(err).Error("server exited")
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := config.NewViper()
	var envFile string

	cmd := &cobra.Command{
		Use:           "dianping",
		Short:         "店铺缓存与秒杀下单服务",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(envFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.String("http-addr", ":8080", "HTTP listen address")
	flags.String("db-driver", "sqlite", "database driver (sqlite|mysql)")
	flags.String("db-dsn", "dianping.db", "database DSN")
	flags.String("redis-addr", "localhost:6379", "redis address")
	flags.String("shop-cache-strategy", "passthrough", "shop cache strategy (passthrough|logical|mutex)")
	flags.String("queue-backend", "memory", "order queue backend (memory|stream|kafka)")
	flags.String("log-level", "info", "log level")

	mustBindFlag(v, config.KeyHTTPAddr, flags.Lookup("http-addr"))
	mustBindFlag(v, config.KeyDBDriver, flags.Lookup("db-driver"))
	mustBindFlag(v, config.KeyDBDSN, flags.Lookup("db-dsn"))
	mustBindFlag(v, config.KeyRedisAddr, flags.Lookup("redis-addr"))
	mustBindFlag(v, config.KeyShopCacheStrategy, flags.Lookup("shop-cache-strategy"))
	mustBindFlag(v, config.KeyQueueBackend, flags.Lookup("queue-backend"))
	mustBindFlag(v, config.KeyLogLevel, flags.Lookup("log-level"))
	return cmd
}

func mustBindFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if flag == nil {
		panic(fmt.Sprintf("flag for key %s not found", key))
	}
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

func setupLogger(cfg config.AppConfig) (*logrus.Logger, error) {
	log := logrus.StandardLogger()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	log.SetLevel(level)
	if cfg.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if level < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	return log, nil
}

func newQueue(cfg config.AppConfig, rdb rd.UniversalClient, log logrus.FieldLogger) queue.OrderQueue {
	switch cfg.QueueBackend {
	case "stream":
		return queue.NewStreamQueue(rdb, cfg.OrderStream, cfg.OrderGroup, cfg.OrderConsumer, log)
	case "kafka":
		return queue.NewKafkaQueue(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, log)
	default:
		return queue.NewMemoryQueue(cfg.QueueCapacity, log)
	}
}

func run(parent context.Context, cfg config.AppConfig) error {
	log, err := setupLogger(cfg)
	if err != nil {
		return err
	}

	// 1. 数据库
	db, err := database.Open(database.Options{Driver: cfg.DBDriver, DSN: cfg.DBDSN, Debug: cfg.DBDebug})
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("db migrate: %w", err)
	}

	// 2. Redis
	rdb := rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer rdb.Close()
	pingCtx, cancel := context.WithTimeout(parent, 5*time.Second)
	err = rdb.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		return fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	store := kv.NewKV(rdb)

	// 3. 缓存、队列与业务服务
	pool := cache.NewRebuildPool(cfg.RebuildWorkers, log)
	cacheClient := cache.NewClient(store, pool, log)
	orderQueue := newQueue(cfg, rdb, log)
	defer orderQueue.Close()

	sessions := session.NewStore(store)
	users := service.NewUserService(db, store, sessions, log)
	vouchers := service.NewVoucherService(db, store, cacheClient, log)
	orders := service.NewVoucherOrderService(db, store, kv.NewIDWorker(store), vouchers, orderQueue, log)
	shops := service.NewShopService(db, cacheClient, service.Strategy(cfg.ShopCacheStrategy), cfg.ShopCacheTTL, log)

	r := gin.New()
	r.Use(middleware.AccessLog(log), gin.Recovery())
	router.Setup(r, router.Deps{
		Sessions:   sessions,
		Shops:      shops,
		Users:      users,
		Vouchers:   vouchers,
		Orders:     orders,
		Blogs:      service.NewBlogService(db, store, users, log),
		AdminToken: cfg.AdminToken,
		Log:        log,
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// worker 的 ctx 独立于信号：先停 HTTP，再让 worker 把队列里剩下的处理完
	workerCtx, stopWorker := context.WithCancel(context.WithoutCancel(ctx))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		orderQueue.Run(workerCtx, orders.HandleOrder)
		return nil
	})
	g.Go(func() error {
		log.WithFields(logrus.Fields{
			"addr":     cfg.HTTPAddr,
			"strategy": shops.Strategy(),
			"queue":    cfg.QueueBackend,
		}).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		stopWorker()
		pool.Close()
		log.Info("server stopped")
		return err
	})
	return g.Wait()
}
