package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"deadswitch/keeper"
	"deadswitch/stats"
	"deadswitch/types"
)

type KeeperCmd struct {
	Once        bool          `help:"Run a single scan and exit."`
	Hunter      string        `help:"Address or label that triggers expired vaults and collects bounties. Overrides keeper.hunter_address."`
	Interval    time.Duration `help:"Scan interval. Overrides keeper.interval."`
	MetricsAddr string        `name:"metrics-addr" help:"Serve prometheus metrics on this address. Overrides metrics.addr."`
}

func (c *KeeperCmd) Run(a *App) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if c.Hunter != "" {
		cfg.Keeper.HunterAddress = c.Hunter
	}
	if c.Interval > 0 {
		cfg.Keeper.Interval = c.Interval
	}
	if c.MetricsAddr != "" {
		cfg.Metrics.Addr = c.MetricsAddr
	}

	reg := prometheus.NewRegistry()
	metrics := stats.NewRecorder(reg)
	n, err := openNode(cfg, metrics)
	if err != nil {
		return err
	}
	defer n.Close()

	k := keeper.New(n.db, n.exec, nil)
	k.Publisher = n.pub
	k.Metrics = metrics
	k.Windows = keeper.Windows{
		Final:   cfg.Keeper.FinalWindow,
		Urgent:  cfg.Keeper.UrgentWindow,
		Warning: cfg.Keeper.WarningWindow,
	}
	if cfg.Keeper.HunterAddress != "" {
		hunter, err := resolveAddress(cfg.Keeper.HunterAddress)
		if err != nil {
			return err
		}
		k.Hunter = &hunter
		n.logger.Info("keeper hunter %s", hunter)
	} else {
		n.logger.Warn("no hunter configured, expired vaults are reported but not triggered")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if c.Once {
		rep, err := k.RunOnce(ctx)
		if err != nil {
			return err
		}
		a.printf("%s\n", rep)
		for _, t := range rep.Triggered {
			a.printf("released %s tx=%s bounty=%s\n", t.Vault, t.TxID, types.FormatNative(t.Bounty))
		}
		return nil
	}

	var srv *http.Server
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				n.logger.Error("metrics server: %v", err)
			}
		}()
		n.logger.Info("metrics on http://%s/metrics", cfg.Metrics.Addr)
	}

	sched, err := keeper.NewScheduler(ctx, k)
	if err != nil {
		return err
	}
	if err := sched.Schedule(cfg.Keeper.Interval); err != nil {
		return err
	}
	sched.Start()

	<-ctx.Done()
	if err := sched.Stop(); err != nil {
		n.logger.Warn("stop scheduler: %v", err)
	}
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	return nil
}
