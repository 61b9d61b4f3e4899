package vm

import (
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru"

	iface "deadswitch/interfaces"
	"deadswitch/keys"
	"deadswitch/types"
)

// VaultEntry 地址 + 解码后的记录
type VaultEntry struct {
	Address types.Address
	Vault   *types.Vault
}

// VaultStatus 某一时刻 vault 的计时状态
type VaultStatus struct {
	Expiry    int64
	Remaining int64 // 距离到期的秒数，已过期时 <= 0
	Expired   bool  // now > expiry
	Released  bool
	Overflow  bool // last_check_in + time_interval 溢出，Expiry 无意义
}

// Status 计算 vault 在 now 时的状态
func Status(v *types.Vault, now int64) VaultStatus {
	st := VaultStatus{Released: v.IsReleased}
	exp, err := VaultExpiry(v)
	if err != nil {
		st.Overflow = true
		return st
	}
	st.Expiry = exp
	st.Remaining = exp - now
	st.Expired = now > exp
	return st
}

// VaultQuery 只读查询，解码结果按地址缓存在 LRU 里，提交后失效
type VaultQuery struct {
	db    iface.DBManager
	index iface.VaultIndex
	cache *lru.Cache
}

// NewVaultQuery index 可以为 nil，此时 List 直接扫描序号索引
func NewVaultQuery(db iface.DBManager, index iface.VaultIndex, cacheSize int) (*VaultQuery, error) {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create vault cache: %w", err)
	}
	return &VaultQuery{db: db, index: index, cache: cache}, nil
}

// Invalidate 作为 Executor 的 CommitHook 使用
func (q *VaultQuery) Invalidate(ws []WriteOp) {
	for _, w := range ws {
		if addr, ok := keys.VaultAddrFromKey(w.Key); ok {
			q.cache.Remove(addr)
		}
	}
}

// Get 读取一个 vault，不存在报 AccountNotFound
func (q *VaultQuery) Get(addr types.Address) (*types.Vault, error) {
	k := addr.String()
	if cached, ok := q.cache.Get(k); ok {
		return cached.(*types.Vault).Clone(), nil
	}
	raw, err := q.db.Get(keys.KeyVault(k))
	if err != nil {
		return nil, fmt.Errorf("read vault %s: %w", k, err)
	}
	if raw == nil {
		return nil, ErrAccountNotFound.Withf("vault %s", k)
	}
	v, err := types.UnmarshalVault(raw)
	if err != nil {
		return nil, fmt.Errorf("decode vault %s: %w", k, err)
	}
	q.cache.Add(k, v)
	return v.Clone(), nil
}

// List 按创建顺序列出所有未关闭的 vault
func (q *VaultQuery) List() ([]VaultEntry, error) {
	addrs, err := q.orderedAddresses()
	if err != nil {
		return nil, err
	}
	out := make([]VaultEntry, 0, len(addrs))
	for _, s := range addrs {
		addr, err := types.ParseAddress(s)
		if err != nil {
			return nil, fmt.Errorf("index entry %q: %w", s, err)
		}
		v, err := q.Get(addr)
		if err != nil {
			return nil, err
		}
		out = append(out, VaultEntry{Address: addr, Vault: v})
	}
	return out, nil
}

func (q *VaultQuery) orderedAddresses() ([]string, error) {
	if q.index != nil {
		indices := q.index.SnapshotIndices()
		addrs := make([]string, 0, len(indices))
		for _, idx := range indices {
			raw, err := q.db.Get(keys.KeyVaultIndex(idx))
			if err != nil {
				return nil, fmt.Errorf("read vault index %d: %w", idx, err)
			}
			if raw == nil {
				continue
			}
			addrs = append(addrs, string(raw))
		}
		return addrs, nil
	}

	kvs, err := q.db.Scan(keys.NameOfKeyVaultIndex())
	if err != nil {
		return nil, fmt.Errorf("scan vault index: %w", err)
	}
	idxKeys := make([]string, 0, len(kvs))
	for k := range kvs {
		idxKeys = append(idxKeys, k)
	}
	// 序号是定宽的，字典序即数值序
	sort.Strings(idxKeys)
	addrs := make([]string, 0, len(idxKeys))
	for _, k := range idxKeys {
		addrs = append(addrs, string(kvs[k]))
	}
	return addrs, nil
}

func (q *VaultQuery) filter(keep func(v *types.Vault) bool) ([]VaultEntry, error) {
	all, err := q.List()
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, e := range all {
		if keep(e.Vault) {
			out = append(out, e)
		}
	}
	return out, nil
}

// ByOwner owner 名下的 vault
func (q *VaultQuery) ByOwner(owner types.Address) ([]VaultEntry, error) {
	return q.filter(func(v *types.Vault) bool { return v.Owner == owner })
}

// ByRecipient 指定 recipient 可以领取的 vault
func (q *VaultQuery) ByRecipient(recipient types.Address) ([]VaultEntry, error) {
	return q.filter(func(v *types.Vault) bool { return v.Recipient == recipient })
}

// ByName 名称前缀匹配（不区分大小写）
func (q *VaultQuery) ByName(prefix string) ([]VaultEntry, error) {
	prefix = strings.ToLower(prefix)
	return q.filter(func(v *types.Vault) bool {
		return strings.HasPrefix(strings.ToLower(v.Name), prefix)
	})
}
