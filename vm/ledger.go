package vm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"deadswitch/keys"
	"deadswitch/types"
)

// ============================================
// 账本协作者
// 原生币余额：v1_balance_{address} -> 8 字节小端 u64
// 资产子账户：v1_asset_{owner}_{mint} -> protowire 编码的 AssetAccount
// vault 记录：v1_vault_{address} -> 定长 VaultSpace 字节
// ============================================

const (
	// AccountStorageOverhead 每个账户额外计费的元数据字节数
	AccountStorageOverhead = 128
	// AssetAccountSpace 资产子账户按该大小收取最低保留金
	AssetAccountSpace = 165
)

var errAssetAccountNotEmpty = errors.New("asset account still holds a balance")

// RentSchedule 最低保留金参数
type RentSchedule struct {
	LamportsPerByteYear uint64
	ExemptionThreshold  float64
}

// DefaultRentSchedule 3480 / 2.0
func DefaultRentSchedule() RentSchedule {
	return RentSchedule{LamportsPerByteYear: 3480, ExemptionThreshold: 2.0}
}

// MinimumBalance (128 + size) * lamports_per_byte_year * threshold，超出 uint64 报 Overflow
func (r RentSchedule) MinimumBalance(size int) (uint64, error) {
	perYear, err := SafeMul(uint64(AccountStorageOverhead+size), r.LamportsPerByteYear)
	if err != nil {
		return 0, ErrOverflow.Withf("rent for %d bytes at %d per byte-year", size, r.LamportsPerByteYear)
	}
	total := float64(perYear) * r.ExemptionThreshold
	if total >= float64(1<<64) {
		return 0, ErrOverflow.Withf("rent for %d bytes with threshold %g", size, r.ExemptionThreshold)
	}
	return uint64(total), nil
}

// AssetAccount (owner, mint) 对应的资产子账户
type AssetAccount struct {
	Owner   types.Address
	Mint    types.Address
	Amount  uint64
	Deposit uint64 // 创建时从 payer 扣除的保留金，关闭时退还
}

// Ledger 在一个 StateView 上提供余额、子账户和记录分配
// 所有写入只进入 StateView，由执行器决定提交或回滚
type Ledger struct {
	sv   StateView
	rent RentSchedule
}

func NewLedger(sv StateView, rent RentSchedule) *Ledger {
	return &Ledger{sv: sv, rent: rent}
}

func (l *Ledger) MinimumBalance(size int) (uint64, error) {
	return l.rent.MinimumBalance(size)
}

func (l *Ledger) DeriveVaultAddress(owner types.Address, seed uint64) (types.Address, uint8, error) {
	return types.DeriveVaultAddress(owner, seed)
}

func (l *Ledger) VerifyVaultAddress(addr, owner types.Address, seed uint64, bump uint8) error {
	return types.VerifyVaultAddress(addr, owner, seed, bump)
}

// ---------- 原生币 ----------

// NativeBalance 不存在的账户余额为 0
func (l *Ledger) NativeBalance(addr types.Address) (uint64, error) {
	data, ok, err := l.sv.Get(keys.KeyBalance(addr.String()))
	if err != nil {
		return 0, fmt.Errorf("read balance %s: %w", addr, err)
	}
	if !ok {
		return 0, nil
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("corrupt balance record for %s: %d bytes", addr, len(data))
	}
	return binary.LittleEndian.Uint64(data), nil
}

func (l *Ledger) setNative(addr types.Address, v uint64) {
	key := keys.KeyBalance(addr.String())
	if v == 0 {
		l.sv.Del(key)
		return
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	l.sv.Set(key, buf[:])
}

// Credit 凭空增发（开发网水龙头）
func (l *Ledger) Credit(addr types.Address, amount uint64) error {
	bal, err := l.NativeBalance(addr)
	if err != nil {
		return err
	}
	next, err := SafeAdd(bal, amount)
	if err != nil {
		return err
	}
	l.setNative(addr, next)
	return nil
}

// TransferNative from -> to，余额不足报 InsufficientBalance，入账溢出报 Overflow
func (l *Ledger) TransferNative(from, to types.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	fromBal, err := l.NativeBalance(from)
	if err != nil {
		return err
	}
	rest, err := SafeSub(fromBal, amount)
	if err != nil {
		return ErrInsufficientBalance.Withf("%s has %d, needs %d", from, fromBal, amount)
	}
	if from == to {
		return nil
	}
	toBal, err := l.NativeBalance(to)
	if err != nil {
		return err
	}
	newTo, err := SafeAdd(toBal, amount)
	if err != nil {
		return err
	}
	l.setNative(from, rest)
	l.setNative(to, newTo)
	return nil
}

// ---------- 记录分配 ----------

func (l *Ledger) RecordExists(addr types.Address) (bool, error) {
	_, ok, err := l.sv.Get(keys.KeyVault(addr.String()))
	if err != nil {
		return false, fmt.Errorf("read record %s: %w", addr, err)
	}
	return ok, nil
}

// CreateRecord 分配记录，从 payer 划转 MinimumBalance(len(data)) 到记录地址
func (l *Ledger) CreateRecord(payer, addr types.Address, data []byte) error {
	exists, err := l.RecordExists(addr)
	if err != nil {
		return err
	}
	if exists {
		return ErrAccountAlreadyExists.Withf("record %s", addr)
	}
	deposit, err := l.MinimumBalance(len(data))
	if err != nil {
		return err
	}
	if err := l.TransferNative(payer, addr, deposit); err != nil {
		return err
	}
	l.sv.Set(keys.KeyVault(addr.String()), data)
	return nil
}

// CloseRecord 把记录地址的全部原生币转给 dest 并删除记录，返回转出数量
func (l *Ledger) CloseRecord(addr, dest types.Address) (uint64, error) {
	exists, err := l.RecordExists(addr)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrAccountNotFound.Withf("record %s", addr)
	}
	bal, err := l.NativeBalance(addr)
	if err != nil {
		return 0, err
	}
	if err := l.TransferNative(addr, dest, bal); err != nil {
		return 0, err
	}
	l.setNative(addr, 0)
	l.sv.Del(keys.KeyVault(addr.String()))
	return bal, nil
}

// LoadVault 读取并解码 vault 记录，不存在报 AccountNotFound
func (l *Ledger) LoadVault(addr types.Address) (*types.Vault, error) {
	data, ok, err := l.sv.Get(keys.KeyVault(addr.String()))
	if err != nil {
		return nil, fmt.Errorf("read vault %s: %w", addr, err)
	}
	if !ok {
		return nil, ErrAccountNotFound.Withf("vault %s", addr)
	}
	v, err := types.UnmarshalVault(data)
	if err != nil {
		return nil, fmt.Errorf("decode vault %s: %w", addr, err)
	}
	return v, nil
}

// StoreVault 覆盖已存在的 vault 记录
func (l *Ledger) StoreVault(addr types.Address, v *types.Vault) error {
	data, err := types.MarshalVault(v)
	if err != nil {
		return fmt.Errorf("encode vault %s: %w", addr, err)
	}
	l.sv.Set(keys.KeyVault(addr.String()), data)
	return nil
}

// ---------- 资产子账户 ----------

func assetKey(owner, mint types.Address) string {
	return keys.KeyAssetAccount(owner.String(), mint.String())
}

// AssetAccount 读取子账户，不存在时 ok=false
func (l *Ledger) AssetAccount(owner, mint types.Address) (*AssetAccount, bool, error) {
	data, ok, err := l.sv.Get(assetKey(owner, mint))
	if err != nil {
		return nil, false, fmt.Errorf("read asset account %s/%s: %w", owner, mint, err)
	}
	if !ok {
		return nil, false, nil
	}
	acc, err := DecodeAssetAccount(data)
	if err != nil {
		return nil, false, fmt.Errorf("decode asset account %s/%s: %w", owner, mint, err)
	}
	return acc, true, nil
}

func (l *Ledger) putAsset(acc *AssetAccount) {
	l.sv.Set(assetKey(acc.Owner, acc.Mint), EncodeAssetAccount(acc))
}

// CreateAssetAccount payer 支付保留金，为 owner 开一个 mint 子账户
func (l *Ledger) CreateAssetAccount(payer, owner, mint types.Address) (*AssetAccount, error) {
	_, exists, err := l.AssetAccount(owner, mint)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAccountAlreadyExists.Withf("asset account %s/%s", owner, mint)
	}
	deposit, err := l.MinimumBalance(AssetAccountSpace)
	if err != nil {
		return nil, err
	}
	payerBal, err := l.NativeBalance(payer)
	if err != nil {
		return nil, err
	}
	rest, err := SafeSub(payerBal, deposit)
	if err != nil {
		return nil, ErrInsufficientBalance.Withf("%s cannot fund asset account deposit %d", payer, deposit)
	}
	l.setNative(payer, rest)
	acc := &AssetAccount{Owner: owner, Mint: mint, Deposit: deposit}
	l.putAsset(acc)
	return acc, nil
}

// EnsureAssetAccount 不存在时才创建
func (l *Ledger) EnsureAssetAccount(payer, owner, mint types.Address) (*AssetAccount, error) {
	acc, ok, err := l.AssetAccount(owner, mint)
	if err != nil {
		return nil, err
	}
	if ok {
		return acc, nil
	}
	return l.CreateAssetAccount(payer, owner, mint)
}

// TransferAsset 两端子账户都必须已存在
func (l *Ledger) TransferAsset(from, to, mint types.Address, amount uint64) error {
	src, ok, err := l.AssetAccount(from, mint)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAccountNotFound.Withf("asset account %s/%s", from, mint)
	}
	left, err := SafeSub(src.Amount, amount)
	if err != nil {
		return ErrInsufficientBalance.Withf("%s holds %d of %s, needs %d", from, src.Amount, mint, amount)
	}
	if from == to {
		return nil
	}
	dst, ok, err := l.AssetAccount(to, mint)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAccountNotFound.Withf("asset account %s/%s", to, mint)
	}
	newDst, err := SafeAdd(dst.Amount, amount)
	if err != nil {
		return err
	}
	src.Amount = left
	dst.Amount = newDst
	l.putAsset(src)
	l.putAsset(dst)
	return nil
}

// CloseAssetAccount 关闭空的子账户，保留金退给 refundTo
func (l *Ledger) CloseAssetAccount(owner, mint, refundTo types.Address) (uint64, error) {
	acc, ok, err := l.AssetAccount(owner, mint)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrAccountNotFound.Withf("asset account %s/%s", owner, mint)
	}
	if acc.Amount != 0 {
		return 0, fmt.Errorf("close %s/%s: %w", owner, mint, errAssetAccountNotEmpty)
	}
	if err := l.Credit(refundTo, acc.Deposit); err != nil {
		return 0, err
	}
	l.sv.Del(assetKey(owner, mint))
	return acc.Deposit, nil
}

// MintAsset 开发网水龙头：直接给 owner 增发资产，子账户不存在时免保留金创建
func (l *Ledger) MintAsset(owner, mint types.Address, amount uint64) error {
	acc, ok, err := l.AssetAccount(owner, mint)
	if err != nil {
		return err
	}
	if !ok {
		acc = &AssetAccount{Owner: owner, Mint: mint}
	}
	next, err := SafeAdd(acc.Amount, amount)
	if err != nil {
		return err
	}
	acc.Amount = next
	l.putAsset(acc)
	return nil
}

// AssetAccounts 列出 owner 的所有子账户，按 mint 排序
func (l *Ledger) AssetAccounts(owner types.Address) ([]*AssetAccount, error) {
	kvs, err := l.sv.Scan(keys.KeyAssetAccountPrefix(owner.String()))
	if err != nil {
		return nil, fmt.Errorf("scan asset accounts of %s: %w", owner, err)
	}
	out := make([]*AssetAccount, 0, len(kvs))
	for k, data := range kvs {
		acc, err := DecodeAssetAccount(data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", k, err)
		}
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Mint.String() < out[j].Mint.String() })
	return out, nil
}
