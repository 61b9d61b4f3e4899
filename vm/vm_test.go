package vm_test

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	iface "deadswitch/interfaces"
	"deadswitch/keys"
	"deadswitch/types"
	"deadswitch/vm"
)

// ========== Mock数据库实现 ==========

type MockDB struct {
	mu        sync.RWMutex
	data      map[string][]byte
	failApply error
	batches   int
}

func NewMockDB() *MockDB {
	return &MockDB{data: make(map[string][]byte)}
}

func (db *MockDB) Get(key string) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	val, exists := db.data[key]
	if !exists {
		return nil, nil
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (db *MockDB) Scan(prefix string) (map[string][]byte, error) {
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

func (db *MockDB) ApplyBatch(writes []iface.KVWrite) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.failApply != nil {
		return db.failApply
	}
	for _, w := range writes {
		if w.Del {
			delete(db.data, w.Key)
		} else {
			db.data[w.Key] = append([]byte(nil), w.Value...)
		}
	}
	db.batches++
	return nil
}

func (db *MockDB) Close() error { return nil }

// stateSnapshot 只取可变状态，用于比较“零残留”
func (db *MockDB) stateSnapshot() map[string]string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make(map[string]string)
	for k, v := range db.data {
		if keys.IsStatefulKey(k) || keys.IsIndexKey(k) {
			out[k] = string(v)
		}
	}
	return out
}

// ========== 测试环境 ==========

type fakeClock struct{ now int64 }

func (c *fakeClock) Now() int64 { return c.now }

type testEnv struct {
	t     *testing.T
	db    *MockDB
	clock *fakeClock
	x     *vm.Executor
	q     *vm.VaultQuery
	seq   int
}

var (
	alice    = types.LabelAddress("alice")
	bob      = types.LabelAddress("bob")
	carol    = types.LabelAddress("carol")
	hunter   = types.LabelAddress("hunter")
	delegate = types.LabelAddress("delegate")
	mintA    = types.LabelAddress("mint-a")
	mintB    = types.LabelAddress("mint-b")
)

const startBalance = 10_000_000_000

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := NewMockDB()
	reg := vm.NewHandlerRegistry()
	require.NoError(t, vm.RegisterDefaultHandlers(reg, nil))

	clock := &fakeClock{}
	x := vm.NewExecutor(db, reg, clock)
	q, err := vm.NewVaultQuery(db, nil, 16)
	require.NoError(t, err)
	x.OnCommit(q.Invalidate)

	env := &testEnv{t: t, db: db, clock: clock, x: x, q: q}
	for _, who := range []types.Address{alice, bob, carol, hunter, delegate} {
		require.NoError(t, x.Airdrop(who, startBalance))
	}
	return env
}

func (e *testEnv) exec(caller, vault types.Address, c vm.Content) (*vm.Receipt, error) {
	e.seq++
	tx := &vm.Tx{
		TxID:    fmt.Sprintf("tx_%03d", e.seq),
		Caller:  caller,
		Vault:   vault,
		Content: c,
	}
	return e.x.Execute(tx)
}

func (e *testEnv) mustExec(caller, vault types.Address, c vm.Content) *vm.Receipt {
	e.t.Helper()
	rc, err := e.exec(caller, vault, c)
	require.NoError(e.t, err)
	require.Equal(e.t, vm.StatusSucceed, rc.Status)
	return rc
}

// initVault 以 alice 为 owner、bob 为 recipient 创建 vault
func (e *testEnv) initVault(seed uint64, interval int64, bounty, locked uint64) types.Address {
	e.t.Helper()
	rc := e.mustExec(alice, types.ZeroAddress, vm.InitializeVault{
		Seed:               seed,
		PayloadReference:   "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi",
		EncryptedKey:       "c2VjcmV0LWtleQ==",
		Recipient:          bob,
		TimeInterval:       interval,
		Bounty:             bounty,
		Name:               "savings",
		LockedNativeAmount: locked,
	})
	return rc.Vault
}

func (e *testEnv) balance(addr types.Address) uint64 {
	e.t.Helper()
	b, err := e.x.NativeBalance(addr)
	require.NoError(e.t, err)
	return b
}

func (e *testEnv) assetBalance(owner, mint types.Address) uint64 {
	e.t.Helper()
	b, err := e.x.AssetBalance(owner, mint)
	require.NoError(e.t, err)
	return b
}

func (e *testEnv) vault(addr types.Address) *types.Vault {
	e.t.Helper()
	v, err := e.q.Get(addr)
	require.NoError(e.t, err)
	return v
}

// totalNative 所有原生币余额 + 资产子账户保留金
func (e *testEnv) totalNative() uint64 {
	e.t.Helper()
	var total uint64
	bals, err := e.db.Scan("v1_balance_")
	require.NoError(e.t, err)
	for _, raw := range bals {
		require.Len(e.t, raw, 8)
		var v uint64
		for i := 7; i >= 0; i-- {
			v = v<<8 | uint64(raw[i])
		}
		total += v
	}
	assets, err := e.db.Scan("v1_asset_")
	require.NoError(e.t, err)
	for _, raw := range assets {
		acc, err := vm.DecodeAssetAccount(raw)
		require.NoError(e.t, err)
		total += acc.Deposit
	}
	return total
}

var vaultRent = minimumBalance(types.VaultSpace)

func minimumBalance(size int) uint64 {
	v, err := vm.DefaultRentSchedule().MinimumBalance(size)
	if err != nil {
		panic(err)
	}
	return v
}

// ========== 测试用例 ==========

func TestRentSchedule(t *testing.T) {
	assert.Equal(t, uint64(3_841_920), minimumBalance(types.VaultSpace))
	assert.Equal(t, uint64(2_039_280), minimumBalance(vm.AssetAccountSpace))
	assert.Equal(t, uint64(890_880), minimumBalance(0))
}

func TestRentScheduleOverflow(t *testing.T) {
	// 字节数 * 费率溢出
	r := vm.RentSchedule{LamportsPerByteYear: 1 << 56, ExemptionThreshold: 1}
	_, err := r.MinimumBalance(types.VaultSpace)
	assert.ErrorIs(t, err, vm.ErrOverflow)

	// 乘以倍数后超出 uint64
	r = vm.RentSchedule{LamportsPerByteYear: math.MaxUint64 / 1024, ExemptionThreshold: 2.0}
	_, err = r.MinimumBalance(types.VaultSpace)
	assert.ErrorIs(t, err, vm.ErrOverflow)

	r = vm.RentSchedule{LamportsPerByteYear: 1, ExemptionThreshold: 1}
	v, err := r.MinimumBalance(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(vm.AccountStorageOverhead), v)
}

func TestInitializeRejectsOverflowingRent(t *testing.T) {
	db := NewMockDB()
	rent := vm.RentSchedule{LamportsPerByteYear: 1 << 56, ExemptionThreshold: 1}
	reg := vm.NewHandlerRegistry()
	require.NoError(t, vm.RegisterDefaultHandlers(reg, &rent))
	x := vm.NewExecutor(db, reg, &fakeClock{})
	x.Rent = rent
	require.NoError(t, x.Airdrop(alice, startBalance))
	before := db.stateSnapshot()

	_, err := x.Execute(&vm.Tx{
		TxID:    "tx_rent",
		Caller:  alice,
		Content: vm.InitializeVault{Seed: 1, Recipient: bob, TimeInterval: 10},
	})
	assert.ErrorIs(t, err, vm.ErrOverflow)
	assert.Equal(t, before, db.stateSnapshot())
}

func TestRegisterDefaultHandlers(t *testing.T) {
	reg := vm.NewHandlerRegistry()
	require.NoError(t, vm.RegisterDefaultHandlers(reg, nil))
	assert.Equal(t, []string{
		vm.KindClaimAndClose, vm.KindClaimAsset, vm.KindClaimNative, vm.KindCloseVault,
		vm.KindInitializeVault, vm.KindLockAsset, vm.KindPing, vm.KindSetDelegate,
		vm.KindTopUpBounty, vm.KindTriggerRelease, vm.KindUpdateVault,
	}, reg.List())

	// 重复注册
	assert.Error(t, vm.RegisterDefaultHandlers(reg, nil))
}

// TestLifecycleScenario t=0 创建，t=50000 ping，t=90000 触发失败，t=200000 触发成功，领取并关闭
func TestLifecycleScenario(t *testing.T) {
	e := newTestEnv(t)

	e.clock.now = 0
	addr := e.initVault(1, 86400, 1000, 5000)
	assert.Equal(t, startBalance-vaultRent-6000, e.balance(alice))
	assert.Equal(t, vaultRent+6000, e.balance(addr))

	v := e.vault(addr)
	assert.Equal(t, alice, v.Owner)
	assert.Equal(t, bob, v.Recipient)
	assert.Equal(t, int64(0), v.LastCheckIn)
	assert.False(t, v.IsReleased)
	assert.Nil(t, v.Delegate)
	assert.Nil(t, v.AssetMint)
	require.NoError(t, types.VerifyVaultAddress(addr, alice, 1, v.Bump))

	e.clock.now = 50000
	e.mustExec(alice, addr, vm.Ping{})
	assert.Equal(t, int64(50000), e.vault(addr).LastCheckIn)

	e.clock.now = 90000
	hunterBefore := e.balance(hunter)
	rc, err := e.exec(hunter, addr, vm.TriggerRelease{})
	assert.ErrorIs(t, err, vm.ErrNotExpired)
	assert.Equal(t, vm.StatusFailed, rc.Status)
	assert.Equal(t, "NotExpired", rc.Code)
	assert.Equal(t, hunterBefore, e.balance(hunter))
	assert.False(t, e.vault(addr).IsReleased)

	e.clock.now = 200000
	rc = e.mustExec(hunter, addr, vm.TriggerRelease{})
	assert.Equal(t, uint64(1000), rc.BountyPaid)
	assert.Equal(t, hunterBefore+1000, e.balance(hunter))
	v = e.vault(addr)
	assert.True(t, v.IsReleased)
	assert.Zero(t, v.Bounty)

	bobBefore := e.balance(bob)
	e.mustExec(bob, addr, vm.ClaimNative{})
	assert.Equal(t, bobBefore+5000, e.balance(bob))
	assert.Zero(t, e.vault(addr).LockedNativeAmount)

	e.mustExec(bob, addr, vm.ClaimAndClose{})
	assert.Equal(t, bobBefore+5000+vaultRent, e.balance(bob))
	assert.Zero(t, e.balance(addr))
	_, err = e.q.Get(addr)
	assert.ErrorIs(t, err, vm.ErrAccountNotFound)

	// 关闭后任何操作都找不到记录
	_, err = e.exec(alice, addr, vm.Ping{})
	assert.ErrorIs(t, err, vm.ErrAccountNotFound)
	assert.Equal(t, vm.CategoryResource, vm.Category(err))
}

func TestExpiryBoundaryIsStrict(t *testing.T) {
	e := newTestEnv(t)
	e.clock.now = 100
	addr := e.initVault(1, 50, 0, 0)

	e.clock.now = 150 // now == expiry
	_, err := e.exec(hunter, addr, vm.TriggerRelease{})
	assert.ErrorIs(t, err, vm.ErrNotExpired)
	_, err = e.exec(bob, addr, vm.ClaimAndClose{})
	assert.ErrorIs(t, err, vm.ErrNotExpired)

	e.clock.now = 151
	rc := e.mustExec(hunter, addr, vm.TriggerRelease{})
	assert.Zero(t, rc.BountyPaid)
	assert.True(t, e.vault(addr).IsReleased)
}

func TestOverflowScenario(t *testing.T) {
	e := newTestEnv(t)
	e.clock.now = 1000
	addr := e.initVault(1, math.MaxInt64, 10, 10)

	e.clock.now = math.MaxInt64
	_, err := e.exec(hunter, addr, vm.TriggerRelease{})
	assert.ErrorIs(t, err, vm.ErrOverflow)
	assert.Equal(t, vm.CategoryArithmetic, vm.Category(err))

	_, err = e.exec(bob, addr, vm.ClaimAndClose{})
	assert.ErrorIs(t, err, vm.ErrOverflow)

	v := e.vault(addr)
	assert.False(t, v.IsReleased)
	assert.Equal(t, uint64(10), v.Bounty)
}

func TestReleaseOnlyOnce(t *testing.T) {
	e := newTestEnv(t)
	addr := e.initVault(1, 10, 500, 0)
	e.clock.now = 11

	e.mustExec(hunter, addr, vm.TriggerRelease{})
	hunterAfter := e.balance(hunter)

	_, err := e.exec(carol, addr, vm.TriggerRelease{})
	assert.ErrorIs(t, err, vm.ErrAlreadyReleased)
	_, err = e.exec(hunter, addr, vm.TriggerRelease{})
	assert.ErrorIs(t, err, vm.ErrAlreadyReleased)
	assert.Equal(t, hunterAfter, e.balance(hunter))

	// 释放后 owner 的修改类操作全部被拒
	for _, c := range []vm.Content{
		vm.Ping{},
		vm.SetDelegate{},
		vm.UpdateVault{},
		vm.TopUpBounty{Amount: 1},
		vm.LockAsset{Mint: mintA, Amount: 1},
	} {
		_, err := e.exec(alice, addr, c)
		assert.ErrorIs(t, err, vm.ErrAlreadyReleased, c.Kind())
		assert.Equal(t, vm.CategoryTiming, vm.Category(err))
	}
}

func TestTriggerReleaseInsufficientForBounty(t *testing.T) {
	e := newTestEnv(t)
	addr := e.initVault(1, 10, 1000, 0)

	// 人为抽走 vault 的一部分余额，让 bounty 支付后跌破最低保留金
	raw, err := e.db.Get(keys.KeyBalance(addr.String()))
	require.NoError(t, err)
	require.NotNil(t, raw)
	e.db.data[keys.KeyBalance(addr.String())] = []byte{0, 0, 0, 0, 0, 0, 0, 0}
	require.NoError(t, e.x.Airdrop(addr, vaultRent+999))

	e.clock.now = 11
	_, err = e.exec(hunter, addr, vm.TriggerRelease{})
	assert.ErrorIs(t, err, vm.ErrInsufficientBalance)
	assert.False(t, e.vault(addr).IsReleased)
}

func TestDelegateRestrictions(t *testing.T) {
	e := newTestEnv(t)
	addr := e.initVault(1, 100, 100, 100)
	d := delegate
	e.mustExec(alice, addr, vm.SetDelegate{Delegate: &d})
	require.NotNil(t, e.vault(addr).Delegate)

	e.clock.now = 20
	e.mustExec(delegate, addr, vm.Ping{})
	assert.Equal(t, int64(20), e.vault(addr).LastCheckIn)

	name := "hijack"
	_, err := e.exec(delegate, addr, vm.UpdateVault{Name: &name})
	assert.ErrorIs(t, err, vm.ErrUnauthorized)
	assert.Equal(t, vm.CategoryAuthorization, vm.Category(err))

	_, err = e.exec(delegate, addr, vm.SetDelegate{})
	assert.ErrorIs(t, err, vm.ErrUnauthorized)

	e.clock.now = 1000 // 已过期
	_, err = e.exec(delegate, addr, vm.TriggerRelease{})
	assert.ErrorIs(t, err, vm.ErrUnauthorized)

	e.mustExec(hunter, addr, vm.TriggerRelease{})
	_, err = e.exec(delegate, addr, vm.ClaimNative{})
	assert.ErrorIs(t, err, vm.ErrNotRecipient)
	assert.Equal(t, vm.CategoryAuthorization, vm.Category(err))
}

func TestDelegateClearedCanTrigger(t *testing.T) {
	e := newTestEnv(t)
	addr := e.initVault(1, 10, 0, 0)
	d := delegate
	e.mustExec(alice, addr, vm.SetDelegate{Delegate: &d})
	e.mustExec(alice, addr, vm.SetDelegate{Delegate: nil})
	assert.Nil(t, e.vault(addr).Delegate)

	_, err := e.exec(delegate, addr, vm.Ping{})
	assert.ErrorIs(t, err, vm.ErrUnauthorized)

	e.clock.now = 11
	e.mustExec(delegate, addr, vm.TriggerRelease{})
}

func TestClaimNativeSingleShot(t *testing.T) {
	e := newTestEnv(t)
	addr := e.initVault(1, 10, 0, 7000)

	_, err := e.exec(bob, addr, vm.ClaimNative{})
	assert.ErrorIs(t, err, vm.ErrNotReleased)

	e.clock.now = 11
	e.mustExec(hunter, addr, vm.TriggerRelease{})

	_, err = e.exec(carol, addr, vm.ClaimNative{})
	assert.ErrorIs(t, err, vm.ErrNotRecipient)

	before := e.balance(bob)
	e.mustExec(bob, addr, vm.ClaimNative{})
	assert.Equal(t, before+7000, e.balance(bob))

	_, err = e.exec(bob, addr, vm.ClaimNative{})
	assert.ErrorIs(t, err, vm.ErrNoLockedNative)
	assert.Equal(t, vm.CategoryState, vm.Category(err))
	assert.Equal(t, before+7000, e.balance(bob))
}

func TestNoLockedNativeFromStart(t *testing.T) {
	e := newTestEnv(t)
	addr := e.initVault(1, 10, 0, 0)
	e.clock.now = 11
	e.mustExec(hunter, addr, vm.TriggerRelease{})
	_, err := e.exec(bob, addr, vm.ClaimNative{})
	assert.ErrorIs(t, err, vm.ErrNoLockedNative)
}

func TestAssetLockAndClaim(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, e.x.MintAsset(alice, mintA, 1_000))
	addr := e.initVault(1, 10, 0, 0)
	assetRent := minimumBalance(vm.AssetAccountSpace)

	_, err := e.exec(alice, addr, vm.LockAsset{Mint: mintA, Amount: 0})
	assert.ErrorIs(t, err, vm.ErrInvalidAmount)

	aliceBefore := e.balance(alice)
	e.mustExec(alice, addr, vm.LockAsset{Mint: mintA, Amount: 400})
	assert.Equal(t, aliceBefore-assetRent, e.balance(alice), "owner pays the vault sub-account deposit")
	assert.Equal(t, uint64(600), e.assetBalance(alice, mintA))
	assert.Equal(t, uint64(400), e.assetBalance(addr, mintA))
	v := e.vault(addr)
	require.NotNil(t, v.AssetMint)
	assert.Equal(t, mintA, *v.AssetMint)
	assert.Equal(t, uint64(400), v.LockedAssetAmount)

	before := e.db.stateSnapshot()
	_, err = e.exec(alice, addr, vm.LockAsset{Mint: mintA, Amount: 1})
	assert.ErrorIs(t, err, vm.ErrAlreadyLocked)
	_, err = e.exec(alice, addr, vm.LockAsset{Mint: mintB, Amount: 1})
	assert.ErrorIs(t, err, vm.ErrAlreadyLocked)
	assert.Equal(t, before, e.db.stateSnapshot())

	_, err = e.exec(bob, addr, vm.ClaimAsset{Mint: mintA})
	assert.ErrorIs(t, err, vm.ErrNotReleased)

	e.clock.now = 11
	e.mustExec(hunter, addr, vm.TriggerRelease{})

	_, err = e.exec(carol, addr, vm.ClaimAsset{Mint: mintA})
	assert.ErrorIs(t, err, vm.ErrNotRecipient)
	_, err = e.exec(bob, addr, vm.ClaimAsset{Mint: mintB})
	assert.ErrorIs(t, err, vm.ErrInvalidMint)

	bobBefore := e.balance(bob)
	e.mustExec(bob, addr, vm.ClaimAsset{Mint: mintA})
	assert.Equal(t, uint64(400), e.assetBalance(bob, mintA))
	assert.Zero(t, e.assetBalance(addr, mintA))
	// recipient 为自己的子账户付保留金，又拿回 vault 子账户的保留金
	assert.Equal(t, bobBefore, e.balance(bob))
	raw, err := e.db.Get(keys.KeyAssetAccount(addr.String(), mintA.String()))
	require.NoError(t, err)
	assert.Nil(t, raw, "vault sub-account closed")

	_, err = e.exec(bob, addr, vm.ClaimAsset{Mint: mintA})
	assert.ErrorIs(t, err, vm.ErrAlreadyClaimed)

	// 领取后 asset_mint 仍在，不能再次锁定
	assert.NotNil(t, e.vault(addr).AssetMint)
}

func TestClaimAssetWithoutLock(t *testing.T) {
	e := newTestEnv(t)
	addr := e.initVault(1, 10, 0, 0)
	e.clock.now = 11
	e.mustExec(hunter, addr, vm.TriggerRelease{})
	_, err := e.exec(bob, addr, vm.ClaimAsset{Mint: mintA})
	assert.ErrorIs(t, err, vm.ErrNoAssetLocked)
}

func TestLockAssetOwnerWithoutBalance(t *testing.T) {
	e := newTestEnv(t)
	addr := e.initVault(1, 10, 0, 0)
	before := e.db.stateSnapshot()

	_, err := e.exec(alice, addr, vm.LockAsset{Mint: mintA, Amount: 5})
	assert.ErrorIs(t, err, vm.ErrAccountNotFound)
	assert.Equal(t, before, e.db.stateSnapshot())

	require.NoError(t, e.x.MintAsset(alice, mintA, 4))
	before = e.db.stateSnapshot()
	_, err = e.exec(alice, addr, vm.LockAsset{Mint: mintA, Amount: 5})
	assert.ErrorIs(t, err, vm.ErrInsufficientBalance)
	assert.Equal(t, before, e.db.stateSnapshot(), "failed lock must not leave the vault sub-account behind")
}

func TestInitializeValidation(t *testing.T) {
	e := newTestEnv(t)
	long := func(n int) string { return strings.Repeat("x", n) }

	cases := []struct {
		name string
		args vm.InitializeVault
		want error
	}{
		{"payload too long", vm.InitializeVault{PayloadReference: long(65), TimeInterval: 1}, vm.ErrPayloadReferenceTooLong},
		{"key too long", vm.InitializeVault{EncryptedKey: long(129), TimeInterval: 1}, vm.ErrEncryptedKeyTooLong},
		{"zero interval", vm.InitializeVault{TimeInterval: 0}, vm.ErrInvalidTimeInterval},
		{"negative interval", vm.InitializeVault{TimeInterval: -1}, vm.ErrInvalidTimeInterval},
		{"name too long", vm.InitializeVault{Name: long(33), TimeInterval: 1}, vm.ErrNameTooLong},
		{"payload checked before name", vm.InitializeVault{PayloadReference: long(65), Name: long(33)}, vm.ErrPayloadReferenceTooLong},
		{"interval checked before name", vm.InitializeVault{Name: long(33)}, vm.ErrInvalidTimeInterval},
		{"total overflows", vm.InitializeVault{TimeInterval: 1, Bounty: math.MaxUint64, LockedNativeAmount: 1}, vm.ErrOverflow},
		{"owner cannot fund", vm.InitializeVault{TimeInterval: 1, Bounty: startBalance}, vm.ErrInsufficientBalance},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := e.db.stateSnapshot()
			rc, err := e.exec(alice, types.ZeroAddress, tc.args)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, vm.StatusFailed, rc.Status)
			assert.Equal(t, before, e.db.stateSnapshot())
		})
	}

	t.Run("maxima accepted", func(t *testing.T) {
		e.mustExec(alice, types.ZeroAddress, vm.InitializeVault{
			Seed:             99,
			PayloadReference: long(64),
			EncryptedKey:     long(128),
			Name:             long(32),
			TimeInterval:     1,
		})
	})
}

func TestInitializeDuplicateSeed(t *testing.T) {
	e := newTestEnv(t)
	addr := e.initVault(7, 100, 0, 0)
	before := e.balance(alice)

	rc, err := e.exec(alice, types.ZeroAddress, vm.InitializeVault{Seed: 7, TimeInterval: 5})
	assert.ErrorIs(t, err, vm.ErrAccountAlreadyExists)
	assert.Equal(t, addr, rc.Vault)
	assert.Equal(t, before, e.balance(alice))

	// 同一 seed 不同 owner 得到不同地址
	rc = e.mustExec(carol, types.ZeroAddress, vm.InitializeVault{Seed: 7, TimeInterval: 5, Recipient: alice})
	assert.NotEqual(t, addr, rc.Vault)
}

func TestUpdateVault(t *testing.T) {
	e := newTestEnv(t)
	addr := e.initVault(1, 100, 0, 0)

	interval := int64(500)
	name := "renamed"
	e.mustExec(alice, addr, vm.UpdateVault{Recipient: &carol, TimeInterval: &interval, Name: &name})
	v := e.vault(addr)
	assert.Equal(t, carol, v.Recipient)
	assert.Equal(t, int64(500), v.TimeInterval)
	assert.Equal(t, "renamed", v.Name)

	// 部分字段非法时整体不生效
	bad := int64(0)
	newName := "other"
	_, err := e.exec(alice, addr, vm.UpdateVault{Name: &newName, TimeInterval: &bad, Recipient: &bob})
	assert.ErrorIs(t, err, vm.ErrInvalidTimeInterval)
	v = e.vault(addr)
	assert.Equal(t, carol, v.Recipient)
	assert.Equal(t, "renamed", v.Name)

	longName := strings.Repeat("n", 33)
	_, err = e.exec(alice, addr, vm.UpdateVault{Name: &longName})
	assert.ErrorIs(t, err, vm.ErrNameTooLong)

	_, err = e.exec(bob, addr, vm.UpdateVault{Name: &name})
	assert.ErrorIs(t, err, vm.ErrUnauthorized)

	// 全部为空也是合法的空操作
	e.mustExec(alice, addr, vm.UpdateVault{})
}

func TestTopUpBounty(t *testing.T) {
	e := newTestEnv(t)
	addr := e.initVault(1, 100, 10, 0)

	_, err := e.exec(alice, addr, vm.TopUpBounty{Amount: 0})
	assert.ErrorIs(t, err, vm.ErrInvalidAmount)

	_, err = e.exec(carol, addr, vm.TopUpBounty{Amount: 5})
	assert.ErrorIs(t, err, vm.ErrUnauthorized)

	vaultBefore := e.balance(addr)
	e.mustExec(alice, addr, vm.TopUpBounty{Amount: 90})
	assert.Equal(t, uint64(100), e.vault(addr).Bounty)
	assert.Equal(t, vaultBefore+90, e.balance(addr))

	_, err = e.exec(alice, addr, vm.TopUpBounty{Amount: startBalance})
	assert.ErrorIs(t, err, vm.ErrInsufficientBalance)
	assert.Equal(t, uint64(100), e.vault(addr).Bounty)
}

func TestTopUpBountyOverflow(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, e.x.Airdrop(carol, math.MaxUint64-startBalance))
	rc := e.mustExec(carol, types.ZeroAddress, vm.InitializeVault{
		Seed: 1, TimeInterval: 10, Recipient: bob, Bounty: math.MaxUint64 - vaultRent - 10,
	})
	addr := rc.Vault
	// 给 carol 重新注资，让划转本身能成功，溢出只发生在 bounty 累加上
	require.NoError(t, e.x.Airdrop(carol, 100))
	_, err := e.exec(carol, addr, vm.TopUpBounty{Amount: 11})
	assert.ErrorIs(t, err, vm.ErrOverflow)
	assert.Equal(t, math.MaxUint64-vaultRent-10, e.vault(addr).Bounty)
}

func TestCloseVaultSweepsEverything(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, e.x.MintAsset(alice, mintA, 50))
	aliceStart := e.balance(alice)

	addr := e.initVault(1, 100, 300, 700)
	e.mustExec(alice, addr, vm.LockAsset{Mint: mintA, Amount: 50})

	_, err := e.exec(bob, addr, vm.CloseVault{})
	assert.ErrorIs(t, err, vm.ErrUnauthorized)

	e.mustExec(alice, addr, vm.CloseVault{})
	assert.Equal(t, aliceStart, e.balance(alice))
	assert.Equal(t, uint64(50), e.assetBalance(alice, mintA))
	assert.Zero(t, e.balance(addr))
	_, err = e.q.Get(addr)
	assert.ErrorIs(t, err, vm.ErrAccountNotFound)

	// 同 seed 可以重新创建
	e.initVault(1, 100, 0, 0)
}

func TestCloseVaultAfterRelease(t *testing.T) {
	e := newTestEnv(t)
	addr := e.initVault(1, 10, 0, 700)
	e.clock.now = 11
	e.mustExec(hunter, addr, vm.TriggerRelease{})

	before := e.balance(alice)
	e.mustExec(alice, addr, vm.CloseVault{})
	assert.Equal(t, before+vaultRent+700, e.balance(alice))
}

func TestClaimAndClose(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, e.x.MintAsset(alice, mintA, 50))
	addr := e.initVault(1, 100, 300, 700)
	e.mustExec(alice, addr, vm.LockAsset{Mint: mintA, Amount: 50})

	_, err := e.exec(carol, addr, vm.ClaimAndClose{})
	assert.ErrorIs(t, err, vm.ErrUnauthorized)
	_, err = e.exec(bob, addr, vm.ClaimAndClose{})
	assert.ErrorIs(t, err, vm.ErrNotExpired)

	// 过期但未正式释放也可以
	e.clock.now = 101
	bobBefore := e.balance(bob)
	e.mustExec(bob, addr, vm.ClaimAndClose{})
	assert.Equal(t, bobBefore+vaultRent+300+700, e.balance(bob))
	assert.Equal(t, uint64(50), e.assetBalance(bob, mintA))
	assert.Zero(t, e.assetBalance(addr, mintA))
}

func TestValueConservation(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, e.x.MintAsset(alice, mintA, 10))
	total := e.totalNative()

	addr := e.initVault(1, 10, 250, 400)
	assert.Equal(t, total, e.totalNative())
	e.mustExec(alice, addr, vm.TopUpBounty{Amount: 50})
	e.mustExec(alice, addr, vm.LockAsset{Mint: mintA, Amount: 10})
	assert.Equal(t, total, e.totalNative())

	e.clock.now = 11
	e.mustExec(hunter, addr, vm.TriggerRelease{})
	e.mustExec(bob, addr, vm.ClaimNative{})
	e.mustExec(bob, addr, vm.ClaimAsset{Mint: mintA})
	e.mustExec(bob, addr, vm.ClaimAndClose{})
	assert.Equal(t, total, e.totalNative())
}

func TestFailedTxStoresReceiptOnly(t *testing.T) {
	e := newTestEnv(t)
	addr := e.initVault(1, 100, 0, 0)
	before := e.db.stateSnapshot()

	tx := &vm.Tx{TxID: "bad_ping", Caller: carol, Vault: addr, Content: vm.Ping{}}
	rc, err := e.x.Execute(tx)
	require.Error(t, err)
	assert.Equal(t, before, e.db.stateSnapshot())

	stored, err := e.x.GetReceipt("bad_ping")
	require.NoError(t, err)
	assert.Equal(t, rc.Status, stored.Status)
	assert.Equal(t, "Unauthorized", stored.Code)
	assert.Equal(t, carol, stored.Caller)
	assert.Equal(t, addr, stored.Vault)

	status, err := e.x.GetTransactionStatus("bad_ping")
	require.NoError(t, err)
	assert.Equal(t, vm.StatusFailed, status)
	status, err = e.x.GetTransactionStatus("never")
	require.NoError(t, err)
	assert.Equal(t, "PENDING", status)

	// 同一 tx id 不能重放
	_, err = e.x.Execute(&vm.Tx{TxID: "bad_ping", Caller: alice, Vault: addr, Content: vm.Ping{}})
	assert.ErrorIs(t, err, vm.ErrDuplicateTx)
}

func TestExecuteInputErrors(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.x.Execute(nil)
	assert.ErrorIs(t, err, vm.ErrNilTx)
	_, err = e.x.Execute(&vm.Tx{Content: vm.Ping{}})
	assert.ErrorIs(t, err, vm.ErrEmptyTxID)
	_, err = e.x.Execute(&vm.Tx{TxID: "x"})
	assert.ErrorIs(t, err, vm.ErrNoHandler)
}

func TestPointerContentAccepted(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, e.x.MintAsset(alice, mintA, 100))

	rc := e.mustExec(alice, types.ZeroAddress, &vm.InitializeVault{
		Seed:               1,
		Recipient:          bob,
		TimeInterval:       100,
		Bounty:             10,
		Name:               "ptr",
		LockedNativeAmount: 20,
	})
	addr := rc.Vault
	require.NotNil(t, e.vault(addr))

	e.clock.now = 5
	e.mustExec(alice, addr, &vm.Ping{})
	assert.Equal(t, int64(5), e.vault(addr).LastCheckIn)

	d := delegate
	e.mustExec(alice, addr, &vm.SetDelegate{Delegate: &d})
	require.NotNil(t, e.vault(addr).Delegate)
	e.mustExec(alice, addr, &vm.SetDelegate{})
	assert.Nil(t, e.vault(addr).Delegate)

	name := "renamed"
	e.mustExec(alice, addr, &vm.UpdateVault{Name: &name})
	assert.Equal(t, name, e.vault(addr).Name)

	e.mustExec(alice, addr, &vm.TopUpBounty{Amount: 5})
	assert.Equal(t, uint64(15), e.vault(addr).Bounty)

	e.mustExec(alice, addr, &vm.LockAsset{Mint: mintA, Amount: 100})

	e.clock.now = 106
	rc = e.mustExec(hunter, addr, &vm.TriggerRelease{})
	assert.Equal(t, uint64(15), rc.BountyPaid)
	e.mustExec(bob, addr, &vm.ClaimNative{})
	e.mustExec(bob, addr, &vm.ClaimAsset{Mint: mintA})
	assert.Equal(t, uint64(100), e.assetBalance(bob, mintA))
	e.mustExec(alice, addr, &vm.CloseVault{})
	assert.Nil(t, e.vault(addr))

	second := e.initVault(2, 10, 0, 0)
	e.clock.now = 200
	e.mustExec(bob, second, &vm.ClaimAndClose{})
	assert.Nil(t, e.vault(second))
}

func TestCommitFailureLeavesStoreUntouched(t *testing.T) {
	e := newTestEnv(t)
	addr := e.initVault(1, 100, 0, 0)
	before := e.db.stateSnapshot()

	e.db.failApply = errors.New("disk full")
	e.clock.now = 42
	rc, err := e.exec(alice, addr, vm.Ping{})
	require.Error(t, err)
	assert.Nil(t, rc)
	assert.False(t, vm.IsVaultError(err))
	assert.Empty(t, vm.Category(err))

	e.db.failApply = nil
	assert.Equal(t, before, e.db.stateSnapshot())
	assert.Equal(t, int64(0), e.vault(addr).LastCheckIn)
}

func TestVaultIndexMaintained(t *testing.T) {
	e := newTestEnv(t)
	a1 := e.initVault(1, 100, 0, 0)
	a2 := e.initVault(2, 100, 0, 0)
	a3 := e.initVault(3, 100, 0, 0)

	list, err := e.q.List()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []types.Address{a1, a2, a3}, []types.Address{list[0].Address, list[1].Address, list[2].Address})

	e.mustExec(alice, a2, vm.CloseVault{})
	list, err = e.q.List()
	require.NoError(t, err)
	got := make([]string, 0, len(list))
	for _, entry := range list {
		got = append(got, entry.Address.String())
	}
	want := []string{a1.String(), a3.String()}
	sort.Strings(got)
	sort.Strings(want)
	assert.Equal(t, want, got)

	raw, err := e.db.Get(keys.KeyVaultIndexOf(a2.String()))
	require.NoError(t, err)
	assert.Nil(t, raw)
	raw, err = e.db.Get(keys.KeyVaultSeq())
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 0, 0, 0, 0, 0, 0, 0}, raw)
}
