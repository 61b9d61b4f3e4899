// keys/category.go
// Key 分类：区分可变状态与不可变流水，便于追踪、调试和缓存失效
package keys

import "strings"

// KeyCategory 定义 Key 的归属
type KeyCategory int

const (
	CategoryKV    KeyCategory = iota // 不可变流水/索引
	CategoryState                    // 可变状态
)

// 可变状态前缀
var statePrefixes = []string{
	"v1_vault_",   // vault 记录
	"v1_balance_", // 原生币余额
	"v1_asset_",   // 资产子账户
}

// CategorizeKey 判断 key 属于哪一类
func CategorizeKey(key string) KeyCategory {
	for _, prefix := range statePrefixes {
		if strings.HasPrefix(key, prefix) {
			return CategoryState
		}
	}
	return CategoryKV
}

// IsStatefulKey 判断 key 是否属于可变状态
func IsStatefulKey(key string) bool {
	return CategorizeKey(key) == CategoryState
}

// IsVaultKey 判断是否为 vault 记录
func IsVaultKey(key string) bool {
	return strings.HasPrefix(key, "v1_vault_")
}

// IsReceiptKey 判断是否为回执
func IsReceiptKey(key string) bool {
	return strings.HasPrefix(key, "v1_receipt_")
}

// IsIndexKey 判断是否为索引数据
func IsIndexKey(key string) bool {
	return strings.HasPrefix(key, "v1_vidx_") ||
		strings.HasPrefix(key, "v1_vidxof_") ||
		key == "v1_vseq"
}

// CategoryName 用于 WriteOp.Category 的可读名称
func CategoryName(key string) string {
	switch {
	case IsVaultKey(key):
		return "vault"
	case strings.HasPrefix(key, "v1_balance_"):
		return "balance"
	case strings.HasPrefix(key, "v1_asset_"):
		return "asset"
	case IsReceiptKey(key):
		return "receipt"
	case IsIndexKey(key):
		return "index"
	default:
		return "meta"
	}
}
