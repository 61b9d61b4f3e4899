package vm

import "fmt"

// UpdateVaultTxHandler 修改 recipient / interval / name，每个字段独立校验
type UpdateVaultTxHandler struct{ vaultHandler }

func (h *UpdateVaultTxHandler) Kind() string {
	return KindUpdateVault
}

func (h *UpdateVaultTxHandler) DryRun(tx *Tx, sv StateView) ([]WriteOp, *Receipt, error) {
	args, err := contentAs[UpdateVault](tx)
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

	var logs []string
	if args.Recipient != nil {
		v.Recipient = *args.Recipient
		logs = append(logs, fmt.Sprintf("recipient updated to %s", v.Recipient))
	}
	if args.TimeInterval != nil {
		if err := validateInterval(*args.TimeInterval); err != nil {
			return fail(tx, err)
		}
		v.TimeInterval = *args.TimeInterval
		logs = append(logs, fmt.Sprintf("time interval updated to %d seconds", v.TimeInterval))
	}
	if args.Name != nil {
		if err := validateName(*args.Name); err != nil {
			return fail(tx, err)
		}
		v.Name = *args.Name
		logs = append(logs, fmt.Sprintf("name updated to %q", v.Name))
	}
	if err := l.StoreVault(tx.Vault, v); err != nil {
		return fail(tx, err)
	}
	return succeed(tx, sv, logs...)
}

func (h *UpdateVaultTxHandler) Apply(tx *Tx) error {
	return ErrNotImplemented
}

// TopUpBountyTxHandler owner 追加 bounty
type TopUpBountyTxHandler struct{ vaultHandler }

func (h *TopUpBountyTxHandler) Kind() string {
	return KindTopUpBounty
}

func (h *TopUpBountyTxHandler) DryRun(tx *Tx, sv StateView) ([]WriteOp, *Receipt, error) {
	args, err := contentAs[TopUpBounty](tx)
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
	if args.Amount == 0 {
		return fail(tx, ErrInvalidAmount)
	}
	if err := l.TransferNative(tx.Caller, tx.Vault, args.Amount); err != nil {
		return fail(tx, err)
	}
	bounty, err := SafeAdd(v.Bounty, args.Amount)
	if err != nil {
		return fail(tx, err)
	}
	v.Bounty = bounty
	if err := l.StoreVault(tx.Vault, v); err != nil {
		return fail(tx, err)
	}
	return succeed(tx, sv, fmt.Sprintf("bounty topped up by %d, total %d", args.Amount, v.Bounty))
}

func (h *TopUpBountyTxHandler) Apply(tx *Tx) error {
	return ErrNotImplemented
}
