package vm

import (
	"fmt"

	"deadswitch/types"
)

// sweepAndClose 关闭 vault：仍持有的资产转给 dest 并关闭子账户，
// 再把记录地址上的全部原生币（保留金 + 未付 bounty + 未领锁定金额）转给 dest
func sweepAndClose(l *Ledger, addr types.Address, v *types.Vault, dest types.Address) ([]string, error) {
	nativeOut, err := l.CloseRecord(addr, dest)
	if err != nil {
		return nil, err
	}
	logs := []string{fmt.Sprintf("vault closed, %d native swept to %s", nativeOut, dest)}

	if v.AssetMint == nil {
		return logs, nil
	}
	mint := *v.AssetMint
	acc, ok, err := l.AssetAccount(addr, mint)
	if err != nil {
		return nil, err
	}
	if !ok {
		return logs, nil
	}
	if acc.Amount > 0 {
		if _, err := l.EnsureAssetAccount(dest, dest, mint); err != nil {
			return nil, err
		}
		if err := l.TransferAsset(addr, dest, mint, acc.Amount); err != nil {
			return nil, err
		}
		logs = append(logs, fmt.Sprintf("%d of mint %s swept to %s", acc.Amount, mint, dest))
	}
	refund, err := l.CloseAssetAccount(addr, mint, dest)
	if err != nil {
		return nil, err
	}
	logs = append(logs, fmt.Sprintf("vault asset account closed, %d refunded", refund))
	return logs, nil
}

// CloseVaultTxHandler owner 随时可以关闭 vault 取回全部余额
type CloseVaultTxHandler struct{ vaultHandler }

func (h *CloseVaultTxHandler) Kind() string {
	return KindCloseVault
}

func (h *CloseVaultTxHandler) DryRun(tx *Tx, sv StateView) ([]WriteOp, *Receipt, error) {
	if _, err := contentAs[CloseVault](tx); err != nil {
		return fail(tx, err)
	}
	l := h.ledger(sv)
	v, err := loadAuthorized(l, tx, RoleOwner, ErrUnauthorized)
	if err != nil {
		return fail(tx, err)
	}
	logs, err := sweepAndClose(l, tx.Vault, v, tx.Caller)
	if err != nil {
		return fail(tx, err)
	}
	return succeed(tx, sv, logs...)
}

func (h *CloseVaultTxHandler) Apply(tx *Tx) error {
	return ErrNotImplemented
}

// ClaimAndCloseTxHandler 过期或已释放后 recipient 直接接收全部余额并关闭 vault
type ClaimAndCloseTxHandler struct{ vaultHandler }

func (h *ClaimAndCloseTxHandler) Kind() string {
	return KindClaimAndClose
}

func (h *ClaimAndCloseTxHandler) DryRun(tx *Tx, sv StateView) ([]WriteOp, *Receipt, error) {
	if _, err := contentAs[ClaimAndClose](tx); err != nil {
		return fail(tx, err)
	}
	l := h.ledger(sv)
	v, err := loadAuthorized(l, tx, RoleRecipient, ErrUnauthorized)
	if err != nil {
		return fail(tx, err)
	}
	expiry, err := VaultExpiry(v)
	if err != nil {
		return fail(tx, err)
	}
	if !(tx.Timestamp > expiry || v.IsReleased) {
		return fail(tx, ErrNotExpired.Withf("now %d, expiry %d", tx.Timestamp, expiry))
	}
	logs, err := sweepAndClose(l, tx.Vault, v, tx.Caller)
	if err != nil {
		return fail(tx, err)
	}
	return succeed(tx, sv, logs...)
}

func (h *ClaimAndCloseTxHandler) Apply(tx *Tx) error {
	return ErrNotImplemented
}
