package vm

import (
	"errors"
	"fmt"
	"sync"
	"time"

	iface "deadswitch/interfaces"
	"deadswitch/keys"
	"deadswitch/logs"
	"deadswitch/types"
)

var (
	ErrEmptyTxID       = errors.New("empty tx id")
	ErrDuplicateTx     = errors.New("tx id already executed")
	ErrReceiptNotFound = errors.New("receipt not found")
)

// CommitHook 每次成功落库后回调（写集含索引和回执）
type CommitHook func(ws []WriteOp)

// Executor 串行执行 vault 操作：overlay 预执行，失败回滚，成功一次性提交
type Executor struct {
	mu     sync.Mutex
	DB     iface.DBManager
	Reg    *HandlerRegistry
	Clock  Clock
	ReadFn ReadThroughFn
	ScanFn ScanFn
	Rent   RentSchedule // 开发网账本操作和余额查询使用，需与 handler 一致

	Index   iface.VaultIndex // 可选
	Metrics MetricsRecorder  // 可选
	Events  ReceiptPublisher // 可选
	Logger  logs.Logger

	hooks []CommitHook
}

// NewExecutor 创建执行器，clock 为 nil 时使用系统时钟
func NewExecutor(db iface.DBManager, reg *HandlerRegistry, clock Clock) *Executor {
	if clock == nil {
		clock = SystemClock
	}
	return &Executor{
		DB:     db,
		Reg:    reg,
		Clock:  clock,
		ReadFn: db.Get,
		ScanFn: db.Scan,
		Rent:   DefaultRentSchedule(),
		Logger: logs.NewNodeLogger("vm", -1),
	}
}

// OnCommit 注册提交回调（查询缓存失效等）
func (x *Executor) OnCommit(h CommitHook) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.hooks = append(x.hooks, h)
}

// Execute 执行一笔操作
// 业务拒绝返回 FAILED 回执和 *VaultError；回执无论成败都会落库
func (x *Executor) Execute(tx *Tx) (*Receipt, error) {
	if tx == nil {
		return nil, ErrNilTx
	}
	if tx.TxID == "" {
		return nil, ErrEmptyTxID
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	start := time.Now()
	kind := tx.Kind()

	applied, err := x.isTxApplied(tx.TxID)
	if err != nil {
		return nil, err
	}
	if applied {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTx, tx.TxID)
	}

	h, ok := x.Reg.Get(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoHandler, kind)
	}

	tx.Timestamp = x.Clock.Now()
	sv := NewStateView(x.ReadFn, x.ScanFn)
	snapshot := sv.Snapshot()

	ws, rc, execErr := h.DryRun(tx, sv)
	if rc == nil {
		rc = newReceipt(tx, StatusSucceed)
	}

	var (
		writes  []WriteOp
		changes []indexChange
	)
	if execErr != nil {
		// 回滚，只落回执
		if err := sv.Revert(snapshot); err != nil {
			return nil, fmt.Errorf("revert tx %s: %w", tx.TxID, err)
		}
		rc.Status = StatusFailed
		rc.Code = Code(execErr)
		if rc.Error == "" {
			rc.Error = execErr.Error()
		}
		rc.WriteCount = 0
		x.Logger.Info("[VM] tx %s (%s) FAILED: %v", tx.TxID, kind, execErr)
	} else {
		idxWrites, idxChanges, err := indexWrites(x.ReadFn, ws)
		if err != nil {
			return nil, fmt.Errorf("index tx %s: %w", tx.TxID, err)
		}
		writes = append(ws, idxWrites...)
		changes = idxChanges
		x.Logger.Debug("[VM] tx %s (%s) SUCCEED, %d writes", tx.TxID, kind, len(writes))
	}

	writes = append(writes, WriteOp{
		Key:      keys.KeyReceipt(tx.TxID),
		Value:    EncodeReceipt(rc),
		Category: "receipt",
	})
	if err := x.DB.ApplyBatch(toKVWrites(writes)); err != nil {
		x.Logger.Error("[VM] commit tx %s failed: %v", tx.TxID, err)
		return nil, fmt.Errorf("commit tx %s: %w", tx.TxID, err)
	}

	x.afterCommit(writes, changes, rc, time.Since(start))
	return rc, execErr
}

func (x *Executor) afterCommit(writes []WriteOp, changes []indexChange, rc *Receipt, d time.Duration) {
	if x.Index != nil {
		for _, c := range changes {
			if c.removed {
				x.Index.Remove(c.idx)
			} else {
				x.Index.Add(c.idx)
			}
		}
	}
	for _, h := range x.hooks {
		h(writes)
	}
	if x.Metrics != nil {
		x.Metrics.ObserveOp(rc.Kind, rc.Status, d)
		if rc.BountyPaid > 0 {
			x.Metrics.AddBountyPaid(rc.BountyPaid)
		}
	}
	if x.Events != nil {
		if err := x.Events.PublishReceipt(rc); err != nil {
			x.Logger.Warn("[VM] publish receipt %s: %v", rc.TxID, err)
		}
	}
}

func toKVWrites(ws []WriteOp) []iface.KVWrite {
	out := make([]iface.KVWrite, len(ws))
	for i, w := range ws {
		out[i] = iface.KVWrite{Key: w.Key, Value: w.Value, Del: w.Del}
	}
	return out
}

func (x *Executor) isTxApplied(txID string) (bool, error) {
	raw, err := x.DB.Get(keys.KeyReceipt(txID))
	if err != nil {
		return false, fmt.Errorf("read receipt %s: %w", txID, err)
	}
	return raw != nil, nil
}

// GetReceipt 读取已落库的回执
func (x *Executor) GetReceipt(txID string) (*Receipt, error) {
	raw, err := x.DB.Get(keys.KeyReceipt(txID))
	if err != nil {
		return nil, fmt.Errorf("read receipt %s: %w", txID, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: %s", ErrReceiptNotFound, txID)
	}
	return DecodeReceipt(raw)
}

// GetTransactionStatus 未执行过的 tx 返回 "PENDING"
func (x *Executor) GetTransactionStatus(txID string) (string, error) {
	rc, err := x.GetReceipt(txID)
	if errors.Is(err, ErrReceiptNotFound) {
		return "PENDING", nil
	}
	if err != nil {
		return "", err
	}
	return rc.Status, nil
}

// ========== 开发网账本操作 ==========

// withLedger 在执行锁内对账本做一次原子修改（不产生回执）
func (x *Executor) withLedger(fn func(l *Ledger) error) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	sv := NewStateView(x.ReadFn, x.ScanFn)
	if err := fn(NewLedger(sv, x.Rent)); err != nil {
		return err
	}
	ws := sv.Diff()
	if len(ws) == 0 {
		return nil
	}
	if err := x.DB.ApplyBatch(toKVWrites(ws)); err != nil {
		return fmt.Errorf("commit ledger update: %w", err)
	}
	for _, h := range x.hooks {
		h(ws)
	}
	return nil
}

// Airdrop 给地址增发原生币
func (x *Executor) Airdrop(to types.Address, amount uint64) error {
	return x.withLedger(func(l *Ledger) error {
		return l.Credit(to, amount)
	})
}

// MintAsset 给 owner 增发某种资产
func (x *Executor) MintAsset(owner, mint types.Address, amount uint64) error {
	return x.withLedger(func(l *Ledger) error {
		return l.MintAsset(owner, mint, amount)
	})
}

// AssetAccounts 列出 owner 已提交的全部资产子账户
func (x *Executor) AssetAccounts(owner types.Address) ([]*AssetAccount, error) {
	l := NewLedger(NewStateView(x.ReadFn, x.ScanFn), x.Rent)
	return l.AssetAccounts(owner)
}

// NativeBalance 读取已提交的原生币余额
func (x *Executor) NativeBalance(addr types.Address) (uint64, error) {
	l := NewLedger(NewStateView(x.ReadFn, x.ScanFn), x.Rent)
	return l.NativeBalance(addr)
}

// AssetBalance 读取已提交的资产余额，子账户不存在时为 0
func (x *Executor) AssetBalance(owner, mint types.Address) (uint64, error) {
	l := NewLedger(NewStateView(x.ReadFn, x.ScanFn), x.Rent)
	acc, ok, err := l.AssetAccount(owner, mint)
	if err != nil || !ok {
		return 0, err
	}
	return acc.Amount, nil
}
