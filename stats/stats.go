package stats

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "deadswitch"

// Recorder 执行器和 keeper 的指标，nil Recorder 上的所有方法都是空操作
type Recorder struct {
	opsTotal      *prom.CounterVec
	opDuration    *prom.HistogramVec
	bountyPaid    prom.Counter
	keeperRuns    *prom.CounterVec
	vaultsTotal   prom.Gauge
	expired       prom.Gauge
	warnings      *prom.GaugeVec
	triggerErrors prom.Counter

	statsLock sync.RWMutex
	opCounts  map[string]uint64 // kind/status -> 次数，给日志和 CLI 用
}

// NewRecorder 创建并注册全部指标，reg 为 nil 时使用独立的 Registry
func NewRecorder(reg *prom.Registry) *Recorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	r := &Recorder{
		opsTotal: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "ops_total",
			Help:      "Executed vault operations by kind and status",
		}, []string{"kind", "status"}),
		opDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "op_duration_seconds",
			Help:      "Vault operation execution latency",
			Buckets:   prom.DefBuckets,
		}, []string{"kind"}),
		bountyPaid: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "bounty_paid_total",
			Help:      "Native units paid out as release bounties",
		}),
		keeperRuns: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "keeper_runs_total",
			Help:      "Keeper scan runs by result",
		}, []string{"result"}),
		vaultsTotal: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "keeper_vaults_total",
			Help:      "Vaults seen by the last keeper scan",
		}),
		expired: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "keeper_expired",
			Help:      "Expired, unreleased vaults seen by the last keeper scan",
		}),
		warnings: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "keeper_warnings",
			Help:      "Vaults close to expiry by urgency",
		}, []string{"urgency"}),
		triggerErrors: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "keeper_trigger_errors_total",
			Help:      "trigger_release submissions rejected during keeper runs",
		}),
		opCounts: make(map[string]uint64),
	}
	reg.MustRegister(r.opsTotal, r.opDuration, r.bountyPaid, r.keeperRuns,
		r.vaultsTotal, r.expired, r.warnings, r.triggerErrors)
	return r
}

// ObserveOp 记录一次操作
func (r *Recorder) ObserveOp(kind, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.opsTotal.WithLabelValues(kind, status).Inc()
	r.opDuration.WithLabelValues(kind).Observe(d.Seconds())

	r.statsLock.Lock()
	r.opCounts[kind+"/"+status]++
	r.statsLock.Unlock()
}

func (r *Recorder) AddBountyPaid(amount uint64) {
	if r == nil {
		return
	}
	r.bountyPaid.Add(float64(amount))
}

// KeeperScan 记录一次扫描的结果，warnings 按 urgency 分组
func (r *Recorder) KeeperScan(total, expired int, warnings map[string]int) {
	if r == nil {
		return
	}
	r.vaultsTotal.Set(float64(total))
	r.expired.Set(float64(expired))
	r.warnings.Reset()
	for urgency, n := range warnings {
		r.warnings.WithLabelValues(urgency).Set(float64(n))
	}
}

// KeeperRun result 为 "ok" 或 "error"
func (r *Recorder) KeeperRun(result string) {
	if r == nil {
		return
	}
	r.keeperRuns.WithLabelValues(result).Inc()
}

func (r *Recorder) KeeperTriggerError() {
	if r == nil {
		return
	}
	r.triggerErrors.Inc()
}

// OpCounts 获取操作统计副本，key 为 "kind/status"
func (r *Recorder) OpCounts() map[string]uint64 {
	if r == nil {
		return nil
	}
	r.statsLock.RLock()
	defer r.statsLock.RUnlock()

	out := make(map[string]uint64, len(r.opCounts))
	for k, v := range r.opCounts {
		out[k] = v
	}
	return out
}
