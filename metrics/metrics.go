// Package metrics 用 Prometheus 记录推荐链路的可观测指标。
//
// Recorder 持有独立的 Registry，不注册到全局默认 Registry，
// 测试与多实例之间互不干扰。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rushteam/saveeat/pipeline"
)

// 请求结果标签。
const (
	OutcomeOK    = "ok"
	OutcomeEmpty = "empty"
	OutcomeError = "error"
)

// Recorder 汇总推荐相关指标。
type Recorder struct {
	registry *prometheus.Registry

	Requests       *prometheus.CounterVec
	RequestLatency prometheus.Histogram
	NodeLatency    *prometheus.HistogramVec
	StageSurvivors *prometheus.HistogramVec
	StageEmptied   *prometheus.CounterVec
	Fallbacks      *prometheus.CounterVec
	TrainEpochs    prometheus.Counter
	TrainMetric    *prometheus.GaugeVec
}

// NewRecorder 创建 Recorder 并注册全部指标。
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "saveeat_requests_total",
			Help: "Recommendation requests by outcome",
		}, []string{"outcome"}),
		RequestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "saveeat_request_duration_seconds",
			Help:    "End-to-end recommendation latency",
			Buckets: prometheus.DefBuckets,
		}),
		NodeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "saveeat_pipeline_node_duration_seconds",
			Help:    "Latency of each pipeline node",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"node", "kind"}),
		StageSurvivors: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "saveeat_filter_stage_survivors",
			Help:    "Recipes surviving each profile filter stage",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"stage"}),
		StageEmptied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "saveeat_filter_stage_emptied_total",
			Help: "Requests whose candidate set was emptied by a filter stage",
		}, []string{"stage"}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "saveeat_fallback_total",
			Help: "Requests ranked by the ingredient-overlap fallback, by reason",
		}, []string{"reason"}),
		TrainEpochs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "saveeat_train_epochs_total",
			Help: "Completed training epochs",
		}),
		TrainMetric: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "saveeat_train_validation_metric",
			Help: "Latest validation metric value",
		}, []string{"metric"}),
	}
	r.registry.MustRegister(
		r.Requests, r.RequestLatency, r.NodeLatency, r.StageSurvivors,
		r.StageEmptied, r.Fallbacks, r.TrainEpochs, r.TrainMetric,
	)
	return r
}

// Registry 返回私有 Registry（用于导出或测试）。
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler 返回 /metrics 的 HTTP handler。
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveRequest 记录一次推荐请求。
func (r *Recorder) ObserveRequest(outcome string, elapsed time.Duration) {
	r.Requests.WithLabelValues(outcome).Inc()
	r.RequestLatency.Observe(elapsed.Seconds())
}

// ObserveStage 记录一个画像过滤阶段的输出数量；out 为 0 且 in > 0 表示该阶段清空了候选集。
func (r *Recorder) ObserveStage(stage string, in, out int) {
	r.StageSurvivors.WithLabelValues(stage).Observe(float64(out))
	if in > 0 && out == 0 {
		r.StageEmptied.WithLabelValues(stage).Inc()
	}
}

// ObserveFallback 记录一次兜底打分。
func (r *Recorder) ObserveFallback(reason string) {
	r.Fallbacks.WithLabelValues(reason).Inc()
}

// ObserveEpoch 记录一个训练 epoch 的验证指标。
func (r *Recorder) ObserveEpoch(metrics map[string]float64) {
	r.TrainEpochs.Inc()
	for name, v := range metrics {
		r.TrainMetric.WithLabelValues(name).Set(v)
	}
}

// NodeHook 返回记录节点耗时的 pipeline.Hook。
func (r *Recorder) NodeHook() pipeline.Hook {
	return func(node pipeline.Node, _, _ int, elapsed time.Duration, _ error) {
		r.NodeLatency.WithLabelValues(node.Name(), string(node.Kind())).Observe(elapsed.Seconds())
	}
}
