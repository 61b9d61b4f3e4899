package keeper

import (
	"fmt"
	"sort"

	iface "deadswitch/interfaces"
	"deadswitch/keys"
	"deadswitch/logs"
	"deadswitch/types"
	"deadswitch/vm"
)

// ScanVaults 解码所有已落库的 vault，判别码不对或解码失败的记录记一条警告后跳过
func ScanVaults(db iface.DBManager, logger logs.Logger) ([]vm.VaultEntry, error) {
	kvs, err := db.Scan(keys.KeyVaultPrefix())
	if err != nil {
		return nil, fmt.Errorf("scan vaults: %w", err)
	}
	out := make([]vm.VaultEntry, 0, len(kvs))
	for k, raw := range kvs {
		addrStr, ok := keys.VaultAddrFromKey(k)
		if !ok {
			continue
		}
		addr, err := types.ParseAddress(addrStr)
		if err != nil {
			logger.Warn("[keeper] skip vault key %q: %v", k, err)
			continue
		}
		if !types.IsVaultRecord(raw) {
			logger.Warn("[keeper] skip %s: not a vault record", addrStr)
			continue
		}
		v, err := types.UnmarshalVault(raw)
		if err != nil {
			logger.Warn("[keeper] skip %s: %v", addrStr, err)
			continue
		}
		out = append(out, vm.VaultEntry{Address: addr, Vault: v})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address.String() < out[j].Address.String()
	})
	return out, nil
}
