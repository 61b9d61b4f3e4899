package vm

import (
	"fmt"

	"deadswitch/types"
)

// TriggerReleaseTxHandler 计时器过期后任何人（delegate 除外）都可以触发释放并领取 bounty
type TriggerReleaseTxHandler struct{ vaultHandler }

func (h *TriggerReleaseTxHandler) Kind() string {
	return KindTriggerRelease
}

func (h *TriggerReleaseTxHandler) DryRun(tx *Tx, sv StateView) ([]WriteOp, *Receipt, error) {
	if _, err := contentAs[TriggerRelease](tx); err != nil {
		return fail(tx, err)
	}
	l := h.ledger(sv)
	v, err := loadAuthorized(l, tx, RoleAny, ErrUnauthorized)
	if err != nil {
		return fail(tx, err)
	}
	if err := requireActive(v); err != nil {
		return fail(tx, err)
	}
	expiry, err := VaultExpiry(v)
	if err != nil {
		return fail(tx, err)
	}
	if tx.Timestamp <= expiry {
		return fail(tx, ErrNotExpired.Withf("now %d, expiry %d", tx.Timestamp, expiry))
	}

	var logs []string
	paid := v.Bounty
	if paid > 0 {
		bal, err := l.NativeBalance(tx.Vault)
		if err != nil {
			return fail(tx, err)
		}
		minRent, err := l.MinimumBalance(types.VaultSpace)
		if err != nil {
			return fail(tx, err)
		}
		if rest, err := SafeSub(bal, paid); err != nil || rest < minRent {
			return fail(tx, ErrInsufficientBalance.Withf("vault balance %d, bounty %d, minimum %d", bal, paid, minRent))
		}
		if err := l.TransferNative(tx.Vault, tx.Caller, paid); err != nil {
			return fail(tx, err)
		}
		v.Bounty = 0
		logs = append(logs, fmt.Sprintf("bounty of %d paid to hunter %s", paid, tx.Caller))
	}

	v.IsReleased = true
	if err := l.StoreVault(tx.Vault, v); err != nil {
		return fail(tx, err)
	}
	logs = append(logs, fmt.Sprintf("vault released, recipient %s can now claim", v.Recipient))
	ws, rc, err := succeed(tx, sv, logs...)
	rc.BountyPaid = paid
	return ws, rc, err
}

func (h *TriggerReleaseTxHandler) Apply(tx *Tx) error {
	return ErrNotImplemented
}
