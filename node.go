package main

import (
	"fmt"

	"deadswitch/config"
	"deadswitch/db"
	"deadswitch/events"
	iface "deadswitch/interfaces"
	"deadswitch/logs"
	"deadswitch/stats"
	"deadswitch/types"
	"deadswitch/vm"
)

// node 一次 CLI 调用期间打开的全部组件
type node struct {
	cfg     *config.Config
	db      iface.DBManager
	index   *db.VaultIndexManager
	exec    *vm.Executor
	query   *vm.VaultQuery
	metrics *stats.Recorder
	pub     events.Publisher
	logger  logs.Logger
}

func rentSchedule(cfg *config.Config) vm.RentSchedule {
	return vm.RentSchedule{
		LamportsPerByteYear: cfg.Ledger.LamportsPerByteYear,
		ExemptionThreshold:  cfg.Ledger.ExemptionThreshold,
	}
}

// openNode 打开存储、恢复索引、注册 handler 并接好指标和事件
func openNode(cfg *config.Config, metrics *stats.Recorder) (*node, error) {
	logger := logs.NewNodeLogger("deadswitch", -1)

	rent := rentSchedule(cfg)
	if _, err := rent.MinimumBalance(types.VaultSpace); err != nil {
		return nil, fmt.Errorf("ledger rent schedule: %w", err)
	}

	store, err := db.Open(cfg, logs.NewNodeLogger("db", -1))
	if err != nil {
		return nil, err
	}
	index, err := db.NewVaultIndexManager(store, logs.NewNodeLogger("index", -1))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create index manager: %w", err)
	}

	reg := vm.NewHandlerRegistry()
	if err := vm.RegisterDefaultHandlers(reg, &rent); err != nil {
		_ = store.Close()
		return nil, err
	}
	exec := vm.NewExecutor(store, reg, nil)
	exec.Rent = rent
	exec.Index = index
	if metrics != nil {
		exec.Metrics = metrics
	}

	var pub events.Publisher = events.NopPublisher{}
	if cfg.Events.NATSURL != "" {
		np, err := events.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.SubjectPrefix, logs.NewNodeLogger("events", -1))
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		pub = np
		exec.Events = np
	}

	query, err := vm.NewVaultQuery(store, index, cfg.Database.VaultCacheSize)
	if err != nil {
		_ = pub.Close()
		_ = store.Close()
		return nil, err
	}
	exec.OnCommit(query.Invalidate)

	return &node{
		cfg:     cfg,
		db:      store,
		index:   index,
		exec:    exec,
		query:   query,
		metrics: metrics,
		pub:     pub,
		logger:  logger,
	}, nil
}

func (n *node) Close() {
	if err := n.pub.Close(); err != nil {
		n.logger.Warn("close publisher: %v", err)
	}
	if err := n.db.Close(); err != nil {
		n.logger.Error("close database: %v", err)
	}
}
