package interfaces

// KVWrite 一条待落库的写操作，Del=true 时忽略 Value
type KVWrite struct {
	Key   string
	Value []byte
	Del   bool
}

// DBManager 存储后端接口（badger / bbolt / 测试用内存实现）
type DBManager interface {
	// Get key 不存在时返回 (nil, nil)
	Get(key string) ([]byte, error)
	// Scan 返回所有以 prefix 开头的键值对
	Scan(prefix string) (map[string][]byte, error)
	// ApplyBatch 在一个事务里原子写入，要么全部生效要么全部不生效
	ApplyBatch(writes []KVWrite) error
	Close() error
}

// VaultIndex 活跃 vault 集合的内存索引，提交成功后由执行器维护
type VaultIndex interface {
	Add(idx uint64)
	Remove(idx uint64)
	SnapshotIndices() []uint64
}
