package vm

import (
	"fmt"

	"deadswitch/types"
)

// InitializeVaultTxHandler 创建 vault：派生地址、分配记录、划入 bounty 和锁定原生币
type InitializeVaultTxHandler struct{ vaultHandler }

func (h *InitializeVaultTxHandler) Kind() string {
	return KindInitializeVault
}

func (h *InitializeVaultTxHandler) DryRun(tx *Tx, sv StateView) ([]WriteOp, *Receipt, error) {
	args, err := contentAs[InitializeVault](tx)
	if err != nil {
		return fail(tx, err)
	}

	// 1. 参数校验，按 payload / key / interval / name 顺序
	if err := validatePayloadReference(args.PayloadReference); err != nil {
		return fail(tx, err)
	}
	if err := validateEncryptedKey(args.EncryptedKey); err != nil {
		return fail(tx, err)
	}
	if err := validateInterval(args.TimeInterval); err != nil {
		return fail(tx, err)
	}
	if err := validateName(args.Name); err != nil {
		return fail(tx, err)
	}
	total, err := SafeAdd(args.Bounty, args.LockedNativeAmount)
	if err != nil {
		return fail(tx, err)
	}

	// 2. 派生地址
	l := h.ledger(sv)
	addr, bump, err := l.DeriveVaultAddress(tx.Caller, args.Seed)
	if err != nil {
		return fail(tx, fmt.Errorf("derive vault address: %w", err))
	}
	tx.Vault = addr

	v := &types.Vault{
		Owner:              tx.Caller,
		Recipient:          args.Recipient,
		PayloadReference:   args.PayloadReference,
		EncryptedKey:       args.EncryptedKey,
		TimeInterval:       args.TimeInterval,
		LastCheckIn:        tx.Timestamp,
		Seed:               args.Seed,
		Bump:               bump,
		Bounty:             args.Bounty,
		Name:               args.Name,
		LockedNativeAmount: args.LockedNativeAmount,
	}
	data, err := types.MarshalVault(v)
	if err != nil {
		return fail(tx, err)
	}

	// 3. 分配记录（owner 支付保留金），再划入 bounty + 锁定金额
	if err := l.CreateRecord(tx.Caller, addr, data); err != nil {
		return fail(tx, err)
	}
	if err := l.TransferNative(tx.Caller, addr, total); err != nil {
		return fail(tx, err)
	}

	return succeed(tx, sv,
		fmt.Sprintf("vault %q initialized for owner %s", args.Name, tx.Caller),
		fmt.Sprintf("vault seed: %d", args.Seed),
		fmt.Sprintf("recipient: %s", args.Recipient),
		fmt.Sprintf("bounty: %d", args.Bounty),
		fmt.Sprintf("locked native: %d", args.LockedNativeAmount),
	)
}

func (h *InitializeVaultTxHandler) Apply(tx *Tx) error {
	return ErrNotImplemented
}
