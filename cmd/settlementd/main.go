package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/cyruslab/pedalpay/src/chain"
	"github.com/cyruslab/pedalpay/src/common"
	"github.com/cyruslab/pedalpay/src/postgres"
	"github.com/cyruslab/pedalpay/src/settlement"
)

type settlementdConfig struct {
	common.CommonConfig `yaml:",inline"`

	Chain      chain.Config                `yaml:"chain"`
	Settlement settlement.SettlementConfig `yaml:"settlement"`
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
	cfg := settlementdConfig{}
	if err := yaml.Unmarshal(rawCfg, &cfg); err != nil {
		log.Printf("failed parsing config file: %s", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.Chain.RPCURL, "rpc", cfg.Chain.RPCURL, "url of the chain rpc endpoint")
	flag.StringVar(&cfg.PromPort, "prom", cfg.PromPort, "address to serve prom stats, default `:2112`")
	flag.StringVar(&cfg.HealthCheckPort, "hcp", cfg.HealthCheckPort, `if defined will expose a health check on /readyz, default ""`)
	flag.StringVar(&cfg.PostgresConfig, "pg", cfg.PostgresConfig, `config string for the postgres connection"`)
	flag.StringVar(&cfg.Settlement.LockPath, "lock", cfg.Settlement.LockPath, `path of the scheduler lock file"`)
	flag.IntVar(&cfg.Settlement.CronHour, "hour", cfg.Settlement.CronHour, "hour of day to run payout submissions")
	flag.IntVar(&cfg.Settlement.CronMinute, "minute", cfg.Settlement.CronMinute, "minute of hour to run payout submissions")
	flag.Parse()

	log.Println("----------------------------------")
	log.Printf("initializing settlementd")
	log.Printf("\trpc:           %s", cfg.Chain.RPCURL)
	log.Printf("\tchain id:      %d", cfg.Chain.ChainID)
	log.Printf("\ttoken:         %s", cfg.Chain.TokenContract)
	log.Printf("\tprom:          %s", cfg.PromPort)
	log.Printf("\thealth check:  %s", cfg.HealthCheckPort)
	log.Printf("\tlock:          %s", cfg.Settlement.LockPath)
	log.Printf("\tcron:          %02d:%02d", cfg.Settlement.CronHour, cfg.Settlement.CronMinute)
	log.Printf("\tmock:          %t", cfg.Chain.Mock)
	log.Println("----------------------------------")

	postgres.ConfigurePostgres(cfg.PostgresConfig)

	logger := common.ConfigureZap(zap.InfoLevel)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := postgres.EnsureSchema(ctx); err != nil {
		logger.Fatal("failed ensuring database schema", zap.Error(err))
	}

	client, err := chain.NewClient(ctx, cfg.Chain, logger)
	if err != nil {
		logger.Fatal("failed building chain client", zap.Error(err))
	}
	defer client.Close()

	pipeline, err := settlement.NewPipeline(cfg.Settlement, client, logger)
	if err != nil {
		logger.Fatal("invalid settlement config", zap.Error(err))
	}

	lockPath := cfg.Settlement.LockPath
	if lockPath == "" {
		lockPath = "/tmp/pedalpay-scheduler.lock"
	}
	scheduler := settlement.NewScheduler(pipeline, lockPath,
		cfg.Settlement.CronHour, cfg.Settlement.CronMinute, logger)
	if _, err := scheduler.Start(ctx); err != nil {
		logger.Fatal("failed starting scheduler", zap.Error(err))
	}
	defer scheduler.Stop()

	go beginReadyzHandler(cfg)
	go beginAdminHandler(cfg, pipeline, logger)
	go beginPromHandler(cfg)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info("shutting down settlementd")
}

func beginReadyzHandler(cfg settlementdConfig) {
	if cfg.HealthCheckPort == "" {
		return
	}
	http.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
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

// beginAdminHandler exposes the manual release of credits stuck on a failed
// payout. There is deliberately no automatic path for this.
func beginAdminHandler(cfg settlementdConfig, pipeline *settlement.Pipeline, logger *zap.Logger) {
	if cfg.HealthCheckPort == "" {
		return
	}
	http.HandleFunc("/admin/payouts/release", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		payoutID := r.URL.Query().Get("id")
		if payoutID == "" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("missing id"))
			return
		}
		err := pipeline.ReleaseFailedPayout(r.Context(), payoutID)
		if errors.Is(err, postgres.ErrPayoutNotReleasable) {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(err.Error()))
			return
		}
		if err != nil {
			logger.Error("failed releasing payout", zap.String("payout", payoutID), zap.Error(err))
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(err.Error()))
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

func beginPromHandler(cfg settlementdConfig) {
	if cfg.PromPort == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go http.ListenAndServe(cfg.PromPort, mux)
}
