package db

import (
	"fmt"
	"path/filepath"

	"deadswitch/config"
	iface "deadswitch/interfaces"
	"deadswitch/logs"
)

// Open 按配置选择存储后端
// badger 使用目录 cfg.Database.Path，bolt 使用该目录下的 deadswitch.db 文件
func Open(cfg *config.Config, logger logs.Logger) (iface.DBManager, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	switch cfg.Database.Backend {
	case config.BackendBadger, "":
		m, err := NewManagerWithConfig(cfg.Database.Path, logger, cfg)
		if err != nil {
			return nil, err
		}
		return m, nil
	case config.BackendBolt:
		m, err := NewBoltManager(filepath.Join(cfg.Database.Path, "deadswitch.db"), logger)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	return nil, fmt.Errorf("unknown database backend %q", cfg.Database.Backend)
}
