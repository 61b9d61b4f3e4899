package keeper

import (
	"sort"
	"time"

	"deadswitch/events"
	"deadswitch/vm"
)

// Windows 剩余时间小于等于对应窗口时告警
type Windows struct {
	Final   time.Duration
	Urgent  time.Duration
	Warning time.Duration
}

// DefaultWindows 1 天 / 3 天 / 7 天
func DefaultWindows() Windows {
	return Windows{
		Final:   24 * time.Hour,
		Urgent:  72 * time.Hour,
		Warning: 7 * 24 * time.Hour,
	}
}

// urgency 没有命中任何窗口时返回空串
func (w Windows) urgency(remaining int64) string {
	switch {
	case remaining <= int64(w.Final/time.Second):
		return events.UrgencyFinal
	case remaining <= int64(w.Urgent/time.Second):
		return events.UrgencyUrgent
	case remaining <= int64(w.Warning/time.Second):
		return events.UrgencyWarning
	}
	return ""
}

// Warning 即将到期的 vault
type Warning struct {
	Entry     vm.VaultEntry
	Expiry    int64
	Remaining int64
	Urgency   string
}

// Classification 一次扫描的分类结果
type Classification struct {
	Expired  []vm.VaultEntry
	Warnings []Warning
}

// CountByUrgency 用于指标
func (c *Classification) CountByUrgency() map[string]int {
	out := make(map[string]int)
	for _, w := range c.Warnings {
		out[w.Urgency]++
	}
	return out
}

// Classify 已释放的 vault 和到期时间溢出的 vault 都不参与分类
// 过期：now > expiry；告警按剩余时间从少到多排序
func Classify(entries []vm.VaultEntry, now int64, w Windows) *Classification {
	c := &Classification{}
	for _, e := range entries {
		st := vm.Status(e.Vault, now)
		if st.Released || st.Overflow {
			continue
		}
		if st.Expired {
			c.Expired = append(c.Expired, e)
			continue
		}
		if u := w.urgency(st.Remaining); u != "" {
			c.Warnings = append(c.Warnings, Warning{
				Entry:     e,
				Expiry:    st.Expiry,
				Remaining: st.Remaining,
				Urgency:   u,
			})
		}
	}
	sort.SliceStable(c.Warnings, func(i, j int) bool {
		return c.Warnings[i].Remaining < c.Warnings[j].Remaining
	})
	return c
}
