package vm

import "time"

// ========== 核心接口定义 ==========

// StateView 状态视图接口
type StateView interface {
	//读/写/删某个 key 的状态；写入只写进这个视图，不直接落到底层 DB。
	Get(key string) ([]byte, bool, error)
	Set(key string, val []byte)
	Del(key string)
	//做一个快照点、必要时回滚到该点，失败的操作靠它做到零残留。
	Snapshot() int
	Revert(snap int) error
	//把预执行期间累积的写集导出来，给后续“真正落库”用。
	Diff() []WriteOp
	// 扫描指定前缀下的所有键值对（overlay 优先）
	Scan(prefix string) (map[string][]byte, error)
}

// TxHandler 交易处理器接口
type TxHandler interface {
	//标识这个 Handler 处理哪种交易类型（比如 "ping"）。
	Kind() string
	//在给定 StateView 上预执行，返回写集 []WriteOp 与执行回执 *Receipt
	DryRun(tx *Tx, sv StateView) ([]WriteOp, *Receipt, error)
	// 可选兜底；统一用 Diff() + DB 批量入库时返回 ErrNotImplemented
	Apply(tx *Tx) error
}

// （读穿函数）
// StateView.Get 在 overlay 没命中时，从底层存储读已提交的值
type ReadThroughFn func(key string) ([]byte, error)

// ScanFn 用于 StateView 从底层存储做前缀扫描
type ScanFn func(prefix string) (map[string][]byte, error)

// Clock 执行器的时间来源（unix 秒）
type Clock interface {
	Now() int64
}

// ClockFunc 让普通函数满足 Clock
type ClockFunc func() int64

func (f ClockFunc) Now() int64 { return f() }

// SystemClock 墙上时钟
var SystemClock Clock = ClockFunc(func() int64 { return time.Now().Unix() })

// MetricsRecorder 执行器上报的指标（stats.Recorder 实现）
type MetricsRecorder interface {
	ObserveOp(kind, status string, d time.Duration)
	AddBountyPaid(amount uint64)
}

// ReceiptPublisher 提交后把回执推给外部（events 包实现）
type ReceiptPublisher interface {
	PublishReceipt(rc *Receipt) error
}
