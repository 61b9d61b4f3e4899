package db

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v2"
	"github.com/dgraph-io/badger/v2/options"

	"deadswitch/config"
	iface "deadswitch/interfaces"
	"deadswitch/logs"
)

var ErrClosed = errors.New("database is not initialized or closed")

// Manager 封装 BadgerDB 的管理器
// 执行器的每笔操作通过 ApplyBatch 在一个 badger 事务里落盘
type Manager struct {
	Db     *badger.DB
	mu     sync.RWMutex
	Logger logs.Logger
	cfg    *config.Config
}

// NewManager 创建一个新的 DBManager 实例
func NewManager(path string, logger logs.Logger) (*Manager, error) {
	return NewManagerWithConfig(path, logger, nil)
}

// NewManagerWithConfig 创建 DBManager，可选注入整份 Config
func NewManagerWithConfig(path string, logger logs.Logger, cfg *config.Config) (*Manager, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = logs.NewNodeLogger("db", -1)
	}
	opts := badger.DefaultOptions(path).WithLogger(nil)
	// 应用调优参数
	if cfg.Database.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = cfg.Database.ValueLogFileSize
	}
	if cfg.Database.NumMemtables > 0 {
		opts.NumMemtables = cfg.Database.NumMemtables
	}
	// 使用 FileIO 模式减少 mmap 内存占用
	opts.TableLoadingMode = options.FileIO
	opts.ValueLogLoadingMode = options.FileIO

	// badger v2 不自动创建父目录，需要手动创建
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	logger.Info("[db] badger opened at %s", path)

	return &Manager{
		Db:     db,
		Logger: logger,
		cfg:    cfg,
	}, nil
}

func (manager *Manager) handle() (*badger.DB, error) {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	if manager.Db == nil {
		return nil, ErrClosed
	}
	return manager.Db, nil
}

// Get 实现 DBManager 接口，key 不存在时返回 (nil, nil)
func (manager *Manager) Get(key string) ([]byte, error) {
	db, err := manager.handle()
	if err != nil {
		return nil, err
	}

	var value []byte
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Scan 扫描指定前缀的所有键值对
func (manager *Manager) Scan(prefix string) (map[string][]byte, error) {
	db, err := manager.handle()
	if err != nil {
		return nil, err
	}
	result := make(map[string][]byte)

	err = db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			k := item.KeyCopy(nil)
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			result[string(k)] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ApplyBatch 在一个读写事务里写入整批，要么全部生效要么全部不生效
func (manager *Manager) ApplyBatch(writes []iface.KVWrite) error {
	if len(writes) == 0 {
		return nil
	}
	db, err := manager.handle()
	if err != nil {
		return err
	}
	err = db.Update(func(txn *badger.Txn) error {
		for _, w := range writes {
			var err error
			if w.Del {
				err = txn.Delete([]byte(w.Key))
			} else {
				err = txn.Set([]byte(w.Key), w.Value)
			}
			if err != nil {
				return fmt.Errorf("write %s: %w", w.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		manager.Logger.Error("[db] apply batch of %d failed: %v", len(writes), err)
		return err
	}
	return nil
}

// Close 关闭数据库，可重复调用
func (manager *Manager) Close() error {
	manager.mu.Lock()
	defer manager.mu.Unlock()

	if manager.Db == nil {
		return nil
	}
	err := manager.Db.Close()
	manager.Db = nil
	return err
}
