package keeper

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"deadswitch/events"
	iface "deadswitch/interfaces"
	"deadswitch/logs"
	"deadswitch/stats"
	"deadswitch/types"
	"deadswitch/vm"
)

// Submitter 提交操作的执行器
type Submitter interface {
	Execute(tx *vm.Tx) (*vm.Receipt, error)
}

// Triggered 一次成功的 trigger_release
type Triggered struct {
	Vault  types.Address
	TxID   string
	Bounty uint64
}

// Report 一次运行的结果
type Report struct {
	Scanned   int
	Expired   int
	Warnings  int
	Triggered []Triggered
	Failed    int
}

// Keeper 周期性扫描 vault：推送告警和过期事件，配置了 hunter 时为过期的 vault 触发释放并领取 bounty
type Keeper struct {
	DB        iface.DBManager
	Exec      Submitter
	Clock     vm.Clock
	Hunter    *types.Address
	Windows   Windows
	Publisher events.Publisher
	Metrics   *stats.Recorder
	Logger    logs.Logger

	newTxID func() string
}

func New(db iface.DBManager, exec Submitter, clock vm.Clock) *Keeper {
	if clock == nil {
		clock = vm.SystemClock
	}
	return &Keeper{
		DB:        db,
		Exec:      exec,
		Clock:     clock,
		Windows:   DefaultWindows(),
		Publisher: events.NopPublisher{},
		Logger:    logs.NewNodeLogger("keeper", -1),
		newTxID:   func() string { return "keeper-" + uuid.NewString() },
	}
}

// RunOnce 扫描一次；ctx 取消时在两次提交之间停止
func (k *Keeper) RunOnce(ctx context.Context) (*Report, error) {
	entries, err := ScanVaults(k.DB, k.Logger)
	if err != nil {
		k.Metrics.KeeperRun("error")
		return nil, err
	}
	now := k.Clock.Now()
	c := Classify(entries, now, k.Windows)
	rep := &Report{Scanned: len(entries), Expired: len(c.Expired), Warnings: len(c.Warnings)}
	k.Metrics.KeeperScan(len(entries), len(c.Expired), c.CountByUrgency())

	for _, w := range c.Warnings {
		v := w.Entry.Vault
		err := k.Publisher.PublishWarning(&events.VaultWarning{
			Vault:     w.Entry.Address,
			Owner:     v.Owner,
			Recipient: v.Recipient,
			Name:      v.Name,
			Expiry:    w.Expiry,
			Remaining: w.Remaining,
			Urgency:   w.Urgency,
		})
		if err != nil {
			k.Logger.Warn("[keeper] publish warning for %s: %v", w.Entry.Address, err)
		}
	}

	for _, e := range c.Expired {
		v := e.Vault
		expiry, _ := vm.VaultExpiry(v)
		err := k.Publisher.PublishExpired(&events.VaultExpired{
			Vault:     e.Address,
			Owner:     v.Owner,
			Recipient: v.Recipient,
			Name:      v.Name,
			Expiry:    expiry,
			Bounty:    v.Bounty,
		})
		if err != nil {
			k.Logger.Warn("[keeper] publish expired for %s: %v", e.Address, err)
		}
	}

	if k.Hunter != nil && k.Exec != nil {
		for _, e := range c.Expired {
			if err := ctx.Err(); err != nil {
				k.Metrics.KeeperRun("error")
				return rep, err
			}
			k.trigger(e, rep)
		}
	}

	k.Metrics.KeeperRun("ok")
	k.Logger.Info("[keeper] scanned=%d expired=%d warnings=%d triggered=%d failed=%d",
		rep.Scanned, rep.Expired, rep.Warnings, len(rep.Triggered), rep.Failed)
	return rep, nil
}

func (k *Keeper) trigger(e vm.VaultEntry, rep *Report) {
	tx := &vm.Tx{
		TxID:    k.newTxID(),
		Caller:  *k.Hunter,
		Vault:   e.Address,
		Content: vm.TriggerRelease{},
	}
	rc, err := k.Exec.Execute(tx)
	if err != nil {
		rep.Failed++
		k.Metrics.KeeperTriggerError()
		if vm.IsVaultError(err) {
			// 别的 hunter 抢先、时钟差等都会走到这里
			k.Logger.Info("[keeper] trigger %s rejected: %v", e.Address, err)
		} else {
			k.Logger.Error("[keeper] trigger %s failed: %v", e.Address, err)
		}
		return
	}
	rep.Triggered = append(rep.Triggered, Triggered{Vault: e.Address, TxID: tx.TxID, Bounty: rc.BountyPaid})
	k.Logger.Info("[keeper] released %s, bounty %d", e.Address, rc.BountyPaid)
}

// String 便于 CLI 输出
func (r *Report) String() string {
	var bounty uint64
	for _, t := range r.Triggered {
		bounty += t.Bounty
	}
	return fmt.Sprintf("scanned %d vaults: %d expired, %d warnings, %d released (bounty %d), %d failed",
		r.Scanned, r.Expired, r.Warnings, len(r.Triggered), bounty, r.Failed)
}
