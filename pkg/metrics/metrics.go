package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 单次分配结果标签
const (
	ResultAssigned       = "assigned"
	ResultRejected       = "rejected"
	ResultRolledBack     = "rolled_back"
	ResultReconciliation = "reconciliation_required"
)

// Recorder 分配引擎指标
// nil *Recorder 的所有方法都是空操作，测试与未启用指标时可直接传 nil
type Recorder struct {
	assignTotal          *prometheus.CounterVec
	compensationFailures *prometheus.CounterVec
	batchDuration        prometheus.Histogram
	batchAssigned        prometheus.Counter
}

// NewRecorder 创建并注册指标
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		assignTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dorm",
			Subsystem: "allocation",
			Name:      "assign_total",
			Help:      "Single-assignment attempts by result.",
		}, []string{"result"}),
		compensationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dorm",
			Subsystem: "allocation",
			Name:      "compensation_failures_total",
			Help:      "Compensation steps that could not be applied after retries.",
		}, []string{"step"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dorm",
			Subsystem: "allocation",
			Name:      "batch_duration_seconds",
			Help:      "Wall time of auto-assignment batches.",
			Buckets:   prometheus.DefBuckets,
		}),
		batchAssigned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dorm",
			Subsystem: "allocation",
			Name:      "batch_assigned_total",
			Help:      "Students assigned by auto-assignment batches.",
		}),
	}

	reg.MustRegister(r.assignTotal, r.compensationFailures, r.batchDuration, r.batchAssigned)
	return r
}

// ObserveAssign 记录一次单分配结果
func (r *Recorder) ObserveAssign(result string) {
	if r == nil {
		return
	}
	r.assignTotal.WithLabelValues(result).Inc()
}

// ObserveCompensationFailure 记录一个补偿步骤失败
func (r *Recorder) ObserveCompensationFailure(step string) {
	if r == nil {
		return
	}
	r.compensationFailures.WithLabelValues(step).Inc()
}

// ObserveBatch 记录一次自动分配批次
func (r *Recorder) ObserveBatch(elapsed time.Duration, assigned int) {
	if r == nil {
		return
	}
	r.batchDuration.Observe(elapsed.Seconds())
	r.batchAssigned.Add(float64(assigned))
}

// Handler 暴露 /metrics
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
