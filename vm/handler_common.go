package vm

import (
	"fmt"

	"deadswitch/types"
)

// vaultHandler 所有 vault 操作共用的依赖
type vaultHandler struct {
	Rent RentSchedule
}

func (h *vaultHandler) ledger(sv StateView) *Ledger {
	return NewLedger(sv, h.Rent)
}

// SetRentSchedule 由 RegisterDefaultHandlers 按配置注入
func (h *vaultHandler) SetRentSchedule(r RentSchedule) {
	h.Rent = r
}

// RentAware 需要保留金参数的 handler
type RentAware interface {
	SetRentSchedule(r RentSchedule)
}

func newReceipt(tx *Tx, status string) *Receipt {
	return &Receipt{
		TxID:      tx.TxID,
		Kind:      tx.Kind(),
		Caller:    tx.Caller,
		Vault:     tx.Vault,
		Status:    status,
		Timestamp: tx.Timestamp,
	}
}

// fail 组装 FAILED 回执，写集为空
func fail(tx *Tx, err error) ([]WriteOp, *Receipt, error) {
	rc := newReceipt(tx, StatusFailed)
	rc.Code = Code(err)
	rc.Error = err.Error()
	return nil, rc, err
}

// succeed 组装 SUCCEED 回执，写集取 StateView 的 Diff
func succeed(tx *Tx, sv StateView, logs ...string) ([]WriteOp, *Receipt, error) {
	ws := sv.Diff()
	rc := newReceipt(tx, StatusSucceed)
	rc.Logs = logs
	rc.WriteCount = len(ws)
	return ws, rc, nil
}

// contentAs 取出参数结构体，值和指针两种形式都接受
func contentAs[T Content](tx *Tx) (T, error) {
	switch c := any(tx.Content).(type) {
	case T:
		return c, nil
	case *T:
		if c != nil {
			return *c, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%w: got %T", ErrWrongContent, tx.Content)
}

// loadVault 读取 vault，并用存储的 bump 确认记录确实属于该派生地址
func loadVault(l *Ledger, tx *Tx) (*types.Vault, error) {
	v, err := l.LoadVault(tx.Vault)
	if err != nil {
		return nil, err
	}
	if err := l.VerifyVaultAddress(tx.Vault, v.Owner, v.Seed, v.Bump); err != nil {
		return nil, fmt.Errorf("vault %s custody check: %w", tx.Vault, err)
	}
	return v, nil
}

// loadAuthorized 读取 vault 并校验角色
func loadAuthorized(l *Ledger, tx *Tx, role Role, denied *VaultError) (*types.Vault, error) {
	v, err := loadVault(l, tx)
	if err != nil {
		return nil, err
	}
	if !authorize(role, tx.Caller, v) {
		return nil, denied.Withf("%s is not %s", tx.Caller, role)
	}
	return v, nil
}

func requireActive(v *types.Vault) error {
	if v.IsReleased {
		return ErrAlreadyReleased
	}
	return nil
}

// VaultExpiry last_check_in + time_interval，溢出报 Overflow
func VaultExpiry(v *types.Vault) (int64, error) {
	exp, err := SafeAddInt64(v.LastCheckIn, v.TimeInterval)
	if err != nil {
		return 0, ErrOverflow.Withf("last_check_in %d + time_interval %d", v.LastCheckIn, v.TimeInterval)
	}
	return exp, nil
}

func validatePayloadReference(s string) error {
	if len(s) > types.MaxPayloadReferenceLen {
		return ErrPayloadReferenceTooLong.Withf("%d > %d", len(s), types.MaxPayloadReferenceLen)
	}
	return nil
}

func validateEncryptedKey(s string) error {
	if len(s) > types.MaxEncryptedKeyLen {
		return ErrEncryptedKeyTooLong.Withf("%d > %d", len(s), types.MaxEncryptedKeyLen)
	}
	return nil
}

func validateName(s string) error {
	if len(s) > types.MaxNameLen {
		return ErrNameTooLong.Withf("%d > %d", len(s), types.MaxNameLen)
	}
	return nil
}

func validateInterval(d int64) error {
	if d <= 0 {
		return ErrInvalidTimeInterval.Withf("got %d", d)
	}
	return nil
}
