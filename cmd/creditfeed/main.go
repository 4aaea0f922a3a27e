package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"path"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/cyruslab/pedalpay/src/common"
	"github.com/cyruslab/pedalpay/src/creditfeed"
	"github.com/cyruslab/pedalpay/src/postgres"
)

type creditfeedConfig struct {
	common.CommonConfig `yaml:",inline"`

	Feed          creditfeed.FeedConfig `yaml:"feed"`
	FlushInterval string                `yaml:"flush_interval"`
}

func main() {
	pwd, _ := os.Getwd()
	fullPath := path.Join(pwd, "config.yaml")
	log.Printf("loading config @ `%s`", fullPath)
	rawCfg, err := os.ReadFile(fullPath)
	if err != nil {
		log.Printf("config file not found: %s", err)
		os.Exit(1)
	}
	cfg := creditfeedConfig{}
	if err := yaml.Unmarshal(rawCfg, &cfg); err != nil {
		log.Printf("failed parsing config file: %s", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.PostgresConfig, "pg", cfg.PostgresConfig, `config string for the postgres connection"`)
	flag.StringVar(&cfg.RedisAddress, "redis", cfg.RedisAddress, "address of the redis holding the tick buffer")
	flag.StringVar(&cfg.PromPort, "prom", cfg.PromPort, "address to serve prom stats, default `:2112`")
	flag.StringVar(&cfg.HealthCheckPort, "hcp", cfg.HealthCheckPort, `if defined will expose a health check on /readyz, default ""`)
	flag.Parse()

	log.Println("----------------------------------")
	log.Printf("initializing creditfeed")
	log.Printf("\tredis:         %s", cfg.RedisAddress)
	log.Printf("\tprom:          %s", cfg.PromPort)
	log.Printf("\thealth check:  %s", cfg.HealthCheckPort)
	log.Println("----------------------------------")

	postgres.ConfigurePostgres(cfg.PostgresConfig)

	logger := common.ConfigureZap(zap.InfoLevel)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := postgres.EnsureSchema(ctx); err != nil {
		logger.Fatal("failed ensuring database schema", zap.Error(err))
	}

	rd := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       0, // use default DB
	})
	if err := rd.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect to redis", zap.String("addr", cfg.RedisAddress), zap.Error(err))
	}
	defer rd.Close()

	feed, err := creditfeed.NewFeed(cfg.Feed, rd, logger)
	if err != nil {
		logger.Fatal("invalid feed config", zap.Error(err))
	}

	flushInterval := time.Minute
	if cfg.FlushInterval != "" {
		if flushInterval, err = time.ParseDuration(cfg.FlushInterval); err != nil {
			logger.Fatal("invalid flush_interval", zap.Error(err))
		}
	}

	go beginReadyzHandler(cfg, rd)
	go beginPromHandler(cfg)
	feed.Start(ctx, flushInterval)
}

func beginReadyzHandler(cfg creditfeedConfig, rd *redis.Client) {
	if cfg.HealthCheckPort == "" {
		return
	}
	http.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := rd.Ping(r.Context()).Err(); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(errors.Wrap(err, "failed pinging redis").Error()))
			return
		}
		pg, err := postgres.GetConnection(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(errors.Wrap(err, "failed pinging postgres").Error()))
			return
		}
		defer pg.Close(r.Context())
		if err := pg.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(errors.Wrap(err, "failed pinging postgres").Error()))
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	go http.ListenAndServe(cfg.HealthCheckPort, nil)
}

func beginPromHandler(cfg creditfeedConfig) {
	if cfg.PromPort == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go http.ListenAndServe(cfg.PromPort, mux)
}
