package vm

import (
	"errors"

	"deadswitch/types"
)

// ========== 错误定义 ==========

var (
	ErrNotImplemented  = errors.New("not implemented")
	ErrNilTx           = errors.New("nil transaction")
	ErrNoHandler       = errors.New("no handler for tx kind")
	ErrWrongContent    = errors.New("tx content does not match handler kind")
	ErrInvalidSnapshot = errors.New("invalid snapshot index")
)

// ========== 操作类型 ==========

const (
	KindInitializeVault = "initialize_vault"
	KindPing            = "ping"
	KindSetDelegate     = "set_delegate"
	KindUpdateVault     = "update_vault"
	KindTopUpBounty     = "top_up_bounty"
	KindLockAsset       = "lock_asset"
	KindTriggerRelease  = "trigger_release"
	KindClaimNative     = "claim_native"
	KindClaimAsset      = "claim_asset"
	KindCloseVault      = "close_vault"
	KindClaimAndClose   = "claim_and_close"
)

const (
	StatusSucceed = "SUCCEED"
	StatusFailed  = "FAILED"
)

// ========== 基础类型定义 ==========

// “要怎么改状态”的清单
type WriteOp struct {
	Key      string // 完整的 key（包括命名空间前缀）
	Value    []byte // 序列化后的值
	Del      bool   // true表示删除操作
	Category string // vault / balance / asset / receipt / index
}

// 记录执行结果
type Receipt struct {
	TxID       string        `json:"tx_id"`
	Kind       string        `json:"kind"`
	Caller     types.Address `json:"caller"`
	Vault      types.Address `json:"vault"`
	Status     string        `json:"status"`         // "SUCCEED" or "FAILED"
	Code       string        `json:"code,omitempty"` // 失败时的业务错误码
	Error      string        `json:"error,omitempty"`
	Timestamp  int64         `json:"timestamp"`
	Logs       []string      `json:"logs,omitempty"`
	WriteCount int           `json:"write_count"`
	BountyPaid uint64        `json:"bounty_paid,omitempty"` // trigger_release 实际支付给调用者的 bounty
}

func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == StatusSucceed
}

// Content 操作参数，每种操作一个结构体
type Content interface {
	Kind() string
}

// Tx 一次对 vault 的操作请求
// Caller 视为已经过身份认证；Timestamp 由执行器的时钟填写
type Tx struct {
	TxID      string
	Caller    types.Address
	Vault     types.Address // initialize_vault 时由 (caller, seed) 派生并回填
	Timestamp int64
	Content   Content
}

// Kind 交易类型，Content 为空时返回空串
func (tx *Tx) Kind() string {
	if tx == nil || tx.Content == nil {
		return ""
	}
	return tx.Content.Kind()
}

// ========== 各操作参数 ==========

type InitializeVault struct {
	Seed               uint64
	PayloadReference   string
	EncryptedKey       string
	Recipient          types.Address
	TimeInterval       int64
	Bounty             uint64
	Name               string
	LockedNativeAmount uint64
}

type Ping struct{}

// SetDelegate Delegate 为 nil 表示清除
type SetDelegate struct {
	Delegate *types.Address
}

// UpdateVault 只修改非 nil 字段
type UpdateVault struct {
	Recipient    *types.Address
	TimeInterval *int64
	Name         *string
}

type TopUpBounty struct {
	Amount uint64
}

type LockAsset struct {
	Mint   types.Address
	Amount uint64
}

type TriggerRelease struct{}

type ClaimNative struct{}

type ClaimAsset struct {
	Mint types.Address
}

type CloseVault struct{}

type ClaimAndClose struct{}

func (InitializeVault) Kind() string { return KindInitializeVault }
func (Ping) Kind() string            { return KindPing }
func (SetDelegate) Kind() string     { return KindSetDelegate }
func (UpdateVault) Kind() string     { return KindUpdateVault }
func (TopUpBounty) Kind() string     { return KindTopUpBounty }
func (LockAsset) Kind() string       { return KindLockAsset }
func (TriggerRelease) Kind() string  { return KindTriggerRelease }
func (ClaimNative) Kind() string     { return KindClaimNative }
func (ClaimAsset) Kind() string      { return KindClaimAsset }
func (CloseVault) Kind() string      { return KindCloseVault }
func (ClaimAndClose) Kind() string   { return KindClaimAndClose }
