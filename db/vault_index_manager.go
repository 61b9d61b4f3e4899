package db

import (
	"strconv"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/roaring64"

	iface "deadswitch/interfaces"
	"deadswitch/keys"
	"deadswitch/logs"
)

// VaultIndexManager 负责：
//  1. 启动时扫描 DB，把活跃 vault 的序号恢复到 64 位 RoaringBitmap；
//  2. 执行器提交成功后实时 Add / Remove；
//  3. 按创建顺序给查询层提供序号快照。
type VaultIndexManager struct {
	mu     sync.RWMutex
	bitmap *roaring64.Bitmap
	db     iface.DBManager
	Logger logs.Logger
}

// ----------  初始化 / 恢复  ----------

func NewVaultIndexManager(db iface.DBManager, logger logs.Logger) (*VaultIndexManager, error) {
	if logger == nil {
		logger = logs.NewNodeLogger("index", -1)
	}
	m := &VaultIndexManager{
		db:     db,
		bitmap: roaring64.New(),
		Logger: logger,
	}
	if err := m.RebuildBitmapFromDB(); err != nil {
		return nil, err
	}
	return m, nil
}

// 一次前缀扫描拿到所有 "v1_vidx_*" 键，填充 bitmap。
func (m *VaultIndexManager) RebuildBitmapFromDB() error {
	prefix := keys.NameOfKeyVaultIndex()
	kvs, err := m.db.Scan(prefix)
	if err != nil {
		return err
	}

	rebuilt := roaring64.New()
	count := 0
	for k := range kvs {
		idx, err := strconv.ParseUint(strings.TrimPrefix(k, prefix), 10, 64)
		if err != nil {
			m.Logger.Warn("[VaultIndexManager] skip malformed index key %q", k)
			continue
		}
		rebuilt.Add(idx)
		count++
	}

	m.mu.Lock()
	m.bitmap = rebuilt
	m.mu.Unlock()
	m.Logger.Info("[VaultIndexManager] rebuilt bitmap with %d vaults", count)
	return nil
}

// ----------  运行时维护  ----------

func (m *VaultIndexManager) Add(idx uint64) {
	m.mu.Lock()
	m.bitmap.Add(idx)
	m.mu.Unlock()
}

func (m *VaultIndexManager) Remove(idx uint64) {
	m.mu.Lock()
	m.bitmap.Remove(idx)
	m.mu.Unlock()
}

// SnapshotIndices 升序返回所有活跃序号（即创建顺序）
func (m *VaultIndexManager) SnapshotIndices() []uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	card := int(m.bitmap.GetCardinality())
	if card == 0 {
		return nil
	}
	indices := make([]uint64, 0, card)
	it := m.bitmap.Iterator()
	for it.HasNext() {
		indices = append(indices, it.Next())
	}
	return indices
}

// Count 活跃 vault 数量
func (m *VaultIndexManager) Count() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bitmap.GetCardinality()
}

// GetAddressByIndex 通过序号查找 vault 地址，不存在时返回空串
func (m *VaultIndexManager) GetAddressByIndex(index uint64) (string, error) {
	raw, err := m.db.Get(keys.KeyVaultIndex(index))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
