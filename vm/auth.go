package vm

import "deadswitch/types"

// Role 每个操作要求的调用者身份
type Role int

const (
	RoleOwner Role = iota
	RoleOwnerOrDelegate
	RoleRecipient
	RoleAny // 任何人，但不能是当前 delegate
)

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleOwnerOrDelegate:
		return "owner-or-delegate"
	case RoleRecipient:
		return "recipient"
	case RoleAny:
		return "any"
	}
	return "unknown"
}

func isDelegate(caller types.Address, v *types.Vault) bool {
	return v.Delegate != nil && *v.Delegate == caller
}

// authorize 判断 caller 是否具备 role
func authorize(role Role, caller types.Address, v *types.Vault) bool {
	switch role {
	case RoleOwner:
		return caller == v.Owner
	case RoleOwnerOrDelegate:
		return caller == v.Owner || isDelegate(caller, v)
	case RoleRecipient:
		return caller == v.Recipient
	case RoleAny:
		return !isDelegate(caller, v)
	}
	return false
}
