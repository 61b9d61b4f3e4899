package vm

import (
	"errors"
	"fmt"
)

// ErrorCategory 业务错误分类
type ErrorCategory string

const (
	CategoryAuthorization ErrorCategory = "AuthorizationError"
	CategoryTiming        ErrorCategory = "TimingError"
	CategoryValidation    ErrorCategory = "ValidationError"
	CategoryArithmetic    ErrorCategory = "ArithmeticError"
	CategoryState         ErrorCategory = "StateError"
	CategoryResource      ErrorCategory = "ResourceError"
)

// VaultError 操作被拒绝时返回的业务错误
// errors.Is 按 Code 比较，Msg 只用于展示
type VaultError struct {
	Code     string
	Category ErrorCategory
	Msg      string
}

func (e *VaultError) Error() string {
	if e.Msg == "" {
		return e.Code
	}
	return e.Code + ": " + e.Msg
}

func (e *VaultError) Is(target error) bool {
	t, ok := target.(*VaultError)
	return ok && t.Code == e.Code
}

// Withf 返回带附加上下文的副本，Code / Category 不变
func (e *VaultError) Withf(format string, args ...interface{}) *VaultError {
	return &VaultError{
		Code:     e.Code,
		Category: e.Category,
		Msg:      e.Msg + " (" + fmt.Sprintf(format, args...) + ")",
	}
}

func newVaultError(cat ErrorCategory, code, msg string) *VaultError {
	return &VaultError{Code: code, Category: cat, Msg: msg}
}

var (
	ErrUnauthorized = newVaultError(CategoryAuthorization, "Unauthorized", "caller is not allowed to perform this action")
	ErrNotRecipient = newVaultError(CategoryAuthorization, "NotRecipient", "only the designated recipient can perform this action")

	ErrNotExpired      = newVaultError(CategoryTiming, "NotExpired", "vault timer has not expired yet")
	ErrAlreadyReleased = newVaultError(CategoryTiming, "AlreadyReleased", "vault has already been released")
	ErrNotReleased     = newVaultError(CategoryTiming, "NotReleased", "vault has not been released yet")

	ErrPayloadReferenceTooLong = newVaultError(CategoryValidation, "PayloadReferenceTooLong", "payload reference exceeds maximum length")
	ErrEncryptedKeyTooLong     = newVaultError(CategoryValidation, "EncryptedKeyTooLong", "encrypted key exceeds maximum length")
	ErrNameTooLong             = newVaultError(CategoryValidation, "NameTooLong", "vault name exceeds maximum length")
	ErrInvalidTimeInterval     = newVaultError(CategoryValidation, "InvalidTimeInterval", "time interval must be greater than 0")
	ErrInvalidAmount           = newVaultError(CategoryValidation, "InvalidAmount", "amount must be greater than 0")
	ErrInvalidMint             = newVaultError(CategoryValidation, "InvalidMint", "invalid asset mint")

	ErrOverflow = newVaultError(CategoryArithmetic, "Overflow", "arithmetic overflow")

	ErrAlreadyLocked  = newVaultError(CategoryState, "AlreadyLocked", "an asset is already locked in this vault")
	ErrNoLockedNative = newVaultError(CategoryState, "NoLockedNative", "no native balance locked in vault")
	ErrNoAssetLocked  = newVaultError(CategoryState, "NoAssetLocked", "no asset locked in vault")
	ErrAlreadyClaimed = newVaultError(CategoryState, "AlreadyClaimed", "locked asset already claimed")

	ErrInsufficientBalance  = newVaultError(CategoryResource, "InsufficientBalance", "insufficient balance")
	ErrAccountAlreadyExists = newVaultError(CategoryResource, "AccountAlreadyExists", "account already exists")
	ErrAccountNotFound      = newVaultError(CategoryResource, "AccountNotFound", "account not found")
)

// Category 返回 err 链上第一个 VaultError 的分类，非业务错误返回空串
func Category(err error) ErrorCategory {
	var ve *VaultError
	if errors.As(err, &ve) {
		return ve.Category
	}
	return ""
}

// Code 返回业务错误码，非业务错误返回空串
func Code(err error) string {
	var ve *VaultError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}

// IsVaultError 是否为业务拒绝（区别于存储 / IO 故障）
func IsVaultError(err error) bool {
	var ve *VaultError
	return errors.As(err, &ve)
}
