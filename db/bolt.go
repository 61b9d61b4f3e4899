package db

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	iface "deadswitch/interfaces"
	"deadswitch/logs"
)

// 所有 key 放在同一个 bucket，前缀语义与 badger 一致
var stateBucket = []byte("state")

// BoltManager 单文件的 bbolt 后端，适合本地 CLI 使用
type BoltManager struct {
	db     *bolt.DB
	Logger logs.Logger
}

// NewBoltManager path 是数据库文件路径，父目录不存在时自动创建
func NewBoltManager(path string, logger logs.Logger) (*BoltManager, error) {
	if logger == nil {
		logger = logs.NewNodeLogger("db", -1)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(stateBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bucket %s: %w", stateBucket, err)
	}
	logger.Info("[db] bbolt opened at %s", path)
	return &BoltManager{db: db, Logger: logger}, nil
}

func (m *BoltManager) Get(key string) ([]byte, error) {
	var out []byte
	err := m.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(stateBucket).Get([]byte(key))
		if v != nil {
			// 只在事务内有效，必须复制
			out = append([]byte{}, v...)
		}
		return nil
	})
	return out, err
}

func (m *BoltManager) Scan(prefix string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	p := []byte(prefix)
	err := m.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(stateBucket).Cursor()
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			out[string(k)] = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyBatch 单个 bbolt 写事务，失败整体回滚
func (m *BoltManager) ApplyBatch(writes []iface.KVWrite) error {
	if len(writes) == 0 {
		return nil
	}
	err := m.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(stateBucket)
		for _, w := range writes {
			var err error
			if w.Del {
				err = b.Delete([]byte(w.Key))
			} else {
				err = b.Put([]byte(w.Key), w.Value)
			}
			if err != nil {
				return fmt.Errorf("write %s: %w", w.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		m.Logger.Error("[db] apply batch of %d failed: %v", len(writes), err)
	}
	return err
}

func (m *BoltManager) Close() error {
	return m.db.Close()
}
