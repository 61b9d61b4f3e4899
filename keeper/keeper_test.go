package keeper

import (
	"context"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deadswitch/events"
	iface "deadswitch/interfaces"
	"deadswitch/keys"
	"deadswitch/logs"
	"deadswitch/stats"
	"deadswitch/types"
	"deadswitch/vm"
)

type memDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func newMemDB() *memDB { return &memDB{data: make(map[string][]byte)} }

func (db *memDB) Get(key string) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	v, ok := db.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (db *memDB) Scan(prefix string) (map[string][]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make(map[string][]byte)
	for k, v := range db.data {
		if strings.HasPrefix(k, prefix) {
			out[k] = append([]byte(nil), v...)
		}
	}
	return out, nil
}

func (db *memDB) ApplyBatch(ws []iface.KVWrite) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, w := range ws {
		if w.Del {
			delete(db.data, w.Key)
		} else {
			db.data[w.Key] = append([]byte(nil), w.Value...)
		}
	}
	return nil
}

func (db *memDB) Close() error { return nil }

type recordingPublisher struct {
	events.NopPublisher
	warnings []*events.VaultWarning
	expired  []*events.VaultExpired
}

func (p *recordingPublisher) PublishWarning(w *events.VaultWarning) error {
	p.warnings = append(p.warnings, w)
	return nil
}

func (p *recordingPublisher) PublishExpired(e *events.VaultExpired) error {
	p.expired = append(p.expired, e)
	return nil
}

type clock struct{ now int64 }

func (c *clock) Now() int64 { return c.now }

const day = int64(24 * 60 * 60)

var (
	owner     = types.LabelAddress("owner")
	recipient = types.LabelAddress("recipient")
	hunter    = types.LabelAddress("hunter")
)

type fixture struct {
	db  *memDB
	clk *clock
	x   *vm.Executor
	n   int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newMemDB()
	reg := vm.NewHandlerRegistry()
	require.NoError(t, vm.RegisterDefaultHandlers(reg, nil))
	clk := &clock{}
	x := vm.NewExecutor(db, reg, clk)
	x.Logger = logs.NewNodeLogger("vm", logs.LevelError)
	require.NoError(t, x.Airdrop(owner, 1_000_000_000))
	return &fixture{db: db, clk: clk, x: x}
}

func (f *fixture) vault(t *testing.T, seed uint64, interval int64, bounty uint64) types.Address {
	t.Helper()
	f.n++
	rc, err := f.x.Execute(&vm.Tx{
		TxID:   "init-" + string(rune('a'+f.n)),
		Caller: owner,
		Content: vm.InitializeVault{
			Seed:         seed,
			Recipient:    recipient,
			TimeInterval: interval,
			Bounty:       bounty,
			Name:         "v",
		},
	})
	require.NoError(t, err)
	return rc.Vault
}

func TestClassify(t *testing.T) {
	mk := func(last, interval int64, released bool) vm.VaultEntry {
		return vm.VaultEntry{
			Address: types.LabelAddress("v"),
			Vault:   &types.Vault{LastCheckIn: last, TimeInterval: interval, IsReleased: released},
		}
	}
	now := 100 * day
	entries := []vm.VaultEntry{
		mk(0, 10*day, false),        // 早已过期
		mk(now-day, day, false),     // now == expiry，未过期，final
		mk(now, 2*day, false),       // urgent
		mk(now, 5*day, false),       // warning
		mk(now, 30*day, false),      // 无告警
		mk(0, 10*day, true),         // 已释放
		mk(1, math.MaxInt64, false), // 溢出
	}

	c := Classify(entries, now, DefaultWindows())
	require.Len(t, c.Expired, 1)
	require.Len(t, c.Warnings, 3)
	assert.Equal(t, events.UrgencyFinal, c.Warnings[0].Urgency)
	assert.Equal(t, int64(0), c.Warnings[0].Remaining)
	assert.Equal(t, events.UrgencyUrgent, c.Warnings[1].Urgency)
	assert.Equal(t, events.UrgencyWarning, c.Warnings[2].Urgency)
	assert.Equal(t, map[string]int{"final": 1, "urgent": 1, "warning": 1}, c.CountByUrgency())
}

func TestScanVaultsSkipsCorrupt(t *testing.T) {
	f := newFixture(t)
	a := f.vault(t, 1, day, 0)
	require.NoError(t, f.db.ApplyBatch([]iface.KVWrite{
		{Key: keys.KeyVault(types.LabelAddress("junk").String()), Value: []byte("not a vault")},
		{Key: keys.KeyVault("not-base58!"), Value: []byte("x")},
	}))

	entries, err := ScanVaults(f.db, logs.NewNodeLogger("test", logs.LevelError))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, a, entries[0].Address)
}

func TestRunOnceTriggersExpired(t *testing.T) {
	f := newFixture(t)
	expired := f.vault(t, 1, day, 500)
	soon := f.vault(t, 2, 10*day, 0)
	f.clk.now = 9*day + 1

	pub := &recordingPublisher{}
	k := New(f.db, f.x, f.clk)
	k.Logger = logs.NewNodeLogger("keeper", logs.LevelError)
	k.Publisher = pub
	k.Metrics = stats.NewRecorder(nil)
	f.x.Metrics = k.Metrics
	h := hunter
	k.Hunter = &h

	rep, err := k.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Scanned)
	assert.Equal(t, 1, rep.Expired)
	assert.Equal(t, 1, rep.Warnings)
	require.Len(t, rep.Triggered, 1)
	assert.Equal(t, expired, rep.Triggered[0].Vault)
	assert.Equal(t, uint64(500), rep.Triggered[0].Bounty)
	assert.Zero(t, rep.Failed)
	assert.Contains(t, rep.String(), "bounty 500")

	require.Len(t, pub.expired, 1)
	assert.Equal(t, expired, pub.expired[0].Vault)
	require.Len(t, pub.warnings, 1)
	assert.Equal(t, soon, pub.warnings[0].Vault)
	assert.Equal(t, events.UrgencyFinal, pub.warnings[0].Urgency)

	bal, err := f.x.NativeBalance(hunter)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), bal)

	status, err := f.x.GetTransactionStatus(rep.Triggered[0].TxID)
	require.NoError(t, err)
	assert.Equal(t, vm.StatusSucceed, status)

	// 第二轮：已释放的不再处理
	rep, err = k.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rep.Expired)
	assert.Empty(t, rep.Triggered)
	assert.Equal(t, uint64(1), k.Metrics.OpCounts()["trigger_release/SUCCEED"])
}

func TestRunOnceWithoutHunterOnlyReports(t *testing.T) {
	f := newFixture(t)
	f.vault(t, 1, day, 0)
	f.clk.now = 2 * day

	k := New(f.db, f.x, f.clk)
	k.Logger = logs.NewNodeLogger("keeper", logs.LevelError)
	rep, err := k.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Expired)
	assert.Empty(t, rep.Triggered)
}

func TestRunOnceCountsRejections(t *testing.T) {
	f := newFixture(t)
	a := f.vault(t, 1, day, 0)
	// hunter 恰好是 delegate，会被拒绝
	h := hunter
	_, err := f.x.Execute(&vm.Tx{TxID: "delegate", Caller: owner, Vault: a, Content: vm.SetDelegate{Delegate: &h}})
	require.NoError(t, err)
	f.clk.now = 2 * day

	k := New(f.db, f.x, f.clk)
	k.Logger = logs.NewNodeLogger("keeper", logs.LevelError)
	k.Hunter = &h
	rep, err := k.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	assert.Empty(t, rep.Triggered)
}

func TestRunOnceStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	f.vault(t, 1, day, 0)
	f.clk.now = 2 * day

	k := New(f.db, f.x, f.clk)
	k.Logger = logs.NewNodeLogger("keeper", logs.LevelError)
	h := hunter
	k.Hunter = &h
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := k.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, rep)
	assert.Empty(t, rep.Triggered)
}

func TestSchedulerRunsKeeper(t *testing.T) {
	f := newFixture(t)
	f.vault(t, 1, day, 0)
	f.clk.now = 2 * day

	k := New(f.db, f.x, f.clk)
	k.Logger = logs.NewNodeLogger("keeper", logs.LevelError)
	h := hunter
	k.Hunter = &h

	s, err := NewScheduler(context.Background(), k)
	require.NoError(t, err)
	require.NoError(t, s.Schedule(time.Hour))
	s.Start()
	defer func() { require.NoError(t, s.Stop()) }()

	// 立即执行的第一轮会释放该 vault
	assert.Eventually(t, func() bool {
		entries, err := ScanVaults(f.db, k.Logger)
		return err == nil && len(entries) == 1 && entries[0].Vault.IsReleased
	}, 5*time.Second, 20*time.Millisecond)
}
