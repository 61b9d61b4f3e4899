// Package events 把执行回执和 keeper 的扫描结果推送给外部订阅者
package events

import (
	"deadswitch/types"
	"deadswitch/vm"
)

// 告警级别
const (
	UrgencyWarning = "warning" // 7 天内到期
	UrgencyUrgent  = "urgent"  // 3 天内到期
	UrgencyFinal   = "final"   // 1 天内到期
)

// VaultWarning 即将到期的 vault
type VaultWarning struct {
	Vault     types.Address `json:"vault"`
	Owner     types.Address `json:"owner"`
	Recipient types.Address `json:"recipient"`
	Name      string        `json:"name"`
	Expiry    int64         `json:"expiry"`
	Remaining int64         `json:"remaining_seconds"`
	Urgency   string        `json:"urgency"`
}

// VaultExpired 已过期但尚未释放的 vault
type VaultExpired struct {
	Vault     types.Address `json:"vault"`
	Owner     types.Address `json:"owner"`
	Recipient types.Address `json:"recipient"`
	Name      string        `json:"name"`
	Expiry    int64         `json:"expiry"`
	Bounty    uint64        `json:"bounty"`
}

// Publisher 事件出口
type Publisher interface {
	PublishReceipt(rc *vm.Receipt) error
	PublishWarning(w *VaultWarning) error
	PublishExpired(e *VaultExpired) error
	Close() error
}

// NopPublisher 未配置 NATS 时使用
type NopPublisher struct{}

func (NopPublisher) PublishReceipt(*vm.Receipt) error   { return nil }
func (NopPublisher) PublishWarning(*VaultWarning) error { return nil }
func (NopPublisher) PublishExpired(*VaultExpired) error { return nil }
func (NopPublisher) Close() error                       { return nil }
