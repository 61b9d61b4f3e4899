package vm

import "fmt"

// PingTxHandler owner 或 delegate 签到，重置计时器
type PingTxHandler struct{ vaultHandler }

func (h *PingTxHandler) Kind() string {
	return KindPing
}

func (h *PingTxHandler) DryRun(tx *Tx, sv StateView) ([]WriteOp, *Receipt, error) {
	if _, err := contentAs[Ping](tx); err != nil {
		return fail(tx, err)
	}
	l := h.ledger(sv)
	v, err := loadVault(l, tx)
	if err != nil {
		return fail(tx, err)
	}
	// 已释放优先于身份检查
	if err := requireActive(v); err != nil {
		return fail(tx, err)
	}
	if !authorize(RoleOwnerOrDelegate, tx.Caller, v) {
		return fail(tx, ErrUnauthorized.Withf("%s is neither owner nor delegate", tx.Caller))
	}

	who := "owner"
	if tx.Caller != v.Owner {
		who = "delegate"
	}
	v.LastCheckIn = tx.Timestamp
	if err := l.StoreVault(tx.Vault, v); err != nil {
		return fail(tx, err)
	}
	return succeed(tx, sv, fmt.Sprintf("ping by %s, timer reset to %d", who, v.LastCheckIn))
}

func (h *PingTxHandler) Apply(tx *Tx) error {
	return ErrNotImplemented
}

// SetDelegateTxHandler 设置或清除只能 ping 的 delegate
type SetDelegateTxHandler struct{ vaultHandler }

func (h *SetDelegateTxHandler) Kind() string {
	return KindSetDelegate
}

func (h *SetDelegateTxHandler) DryRun(tx *Tx, sv StateView) ([]WriteOp, *Receipt, error) {
	args, err := contentAs[SetDelegate](tx)
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

	msg := "delegate cleared"
	if args.Delegate != nil {
		d := *args.Delegate
		v.Delegate = &d
		msg = fmt.Sprintf("delegate set to %s", d)
	} else {
		v.Delegate = nil
	}
	if err := l.StoreVault(tx.Vault, v); err != nil {
		return fail(tx, err)
	}
	return succeed(tx, sv, msg)
}

func (h *SetDelegateTxHandler) Apply(tx *Tx) error {
	return ErrNotImplemented
}
