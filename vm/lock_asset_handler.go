package vm

import "fmt"

// LockAssetTxHandler 把 owner 的某种资产锁进 vault 子账户，只能锁一次
type LockAssetTxHandler struct{ vaultHandler }

func (h *LockAssetTxHandler) Kind() string {
	return KindLockAsset
}

func (h *LockAssetTxHandler) DryRun(tx *Tx, sv StateView) ([]WriteOp, *Receipt, error) {
	args, err := contentAs[LockAsset](tx)
	if err != nil {
		return fail(tx, err)
	}
	l := h.ledger(sv)
	v, err := loadAuthorized(l, tx, RoleOwner, ErrUnauthorized)
	if err != nil {
		return fail(tx, err)
	}
	if err := requireActive(v); err != nil {
		return fail(tx, err)
	}
	if v.AssetMint != nil {
		return fail(tx, ErrAlreadyLocked.Withf("mint %s", *v.AssetMint))
	}
	if args.Amount == 0 {
		return fail(tx, ErrInvalidAmount)
	}

	// vault 子账户按需创建，保留金由 owner 支付
	if _, err := l.EnsureAssetAccount(tx.Caller, tx.Vault, args.Mint); err != nil {
		return fail(tx, err)
	}
	if err := l.TransferAsset(tx.Caller, tx.Vault, args.Mint, args.Amount); err != nil {
		return fail(tx, err)
	}

	mint := args.Mint
	v.AssetMint = &mint
	v.LockedAssetAmount = args.Amount
	if err := l.StoreVault(tx.Vault, v); err != nil {
		return fail(tx, err)
	}
	return succeed(tx, sv, fmt.Sprintf("locked %d of mint %s in vault", args.Amount, mint))
}

func (h *LockAssetTxHandler) Apply(tx *Tx) error {
	return ErrNotImplemented
}
