// keys/keys.go
// 统一的 Key 定义包，供 VM、DB 和 keeper 模块共同使用
package keys

import (
	"fmt"
	"strings"
)

// ===================== 版本控制 =====================
// 全局 Key 版本前缀（例如 "v1" → 产出 "v1_<key>"）。
const KeyVersion = "v1"

// withVer 把版本号拼到最前面（保持下划线风格：v1_<...>）
func withVer(s string) string {
	if KeyVersion == "" {
		return s
	}
	return KeyVersion + "_" + s
}

// StripVersion 把带版本的键去掉版本前缀
func StripVersion(prefixed string) string {
	if KeyVersion == "" {
		return prefixed
	}
	return strings.TrimPrefix(prefixed, KeyVersion+"_")
}

// ===================== Vault 记录 =====================

// KeyVault vault 记录（定长二进制布局）
// 例：v1_vault_<vaultAddr>
func KeyVault(addr string) string {
	return withVer("vault_" + addr)
}

// KeyVaultPrefix 所有 vault 记录的前缀，用于 keeper 扫描
func KeyVaultPrefix() string {
	return withVer("vault_")
}

// VaultAddrFromKey 从 vault key 中取出地址部分
func VaultAddrFromKey(key string) (string, bool) {
	p := KeyVaultPrefix()
	if !strings.HasPrefix(key, p) {
		return "", false
	}
	return key[len(p):], true
}

// ===================== 账本（余额 / 资产子账户） =====================

// KeyBalance 原生币余额
// 例：v1_balance_<addr>
func KeyBalance(addr string) string {
	return withVer("balance_" + addr)
}

// KeyAssetAccount 资产子账户，按 (owner, mint) 区分
// 例：v1_asset_<owner>_<mint>
func KeyAssetAccount(owner, mint string) string {
	return withVer(fmt.Sprintf("asset_%s_%s", owner, mint))
}

// KeyAssetAccountPrefix 某地址下所有资产子账户的前缀
func KeyAssetAccountPrefix(owner string) string {
	return withVer(fmt.Sprintf("asset_%s_", owner))
}

// ===================== 回执 =====================

// KeyReceipt 交易执行回执
// 例：v1_receipt_<txID>
func KeyReceipt(txID string) string {
	return withVer("receipt_" + txID)
}

// ===================== 活跃 vault 索引 =====================

// KeyVaultSeq vault 自增序号
// 例：v1_vseq
func KeyVaultSeq() string {
	return withVer("vseq")
}

// KeyVaultIndex 序号到 vault 地址的映射
// 例：v1_vidx_00000000000000000042
func KeyVaultIndex(idx uint64) string {
	return withVer(fmt.Sprintf("vidx_%s", padUint(idx)))
}

// NameOfKeyVaultIndex 序号索引前缀
func NameOfKeyVaultIndex() string {
	return withVer("vidx_")
}

// KeyVaultIndexOf vault 地址到序号的反向映射
// 例：v1_vidxof_<vaultAddr>
func KeyVaultIndexOf(addr string) string {
	return withVer("vidxof_" + addr)
}

// padUint 20 位定宽，保证字典序等于数值序
func padUint(v uint64) string {
	return fmt.Sprintf("%020d", v)
}
