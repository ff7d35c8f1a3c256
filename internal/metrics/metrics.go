// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder はメトリクス収集のインターフェース。
// スケジューラやオーケストレータから利用する。
type Recorder interface {
	ObserveRun(status string, duration time.Duration)
	SetSensorsRefreshed(count int)
	IncDocumentsRendered()
	IncDeliveryFailure(sink string)
}

// Nop は何も記録しないRecorder。メトリクスを無効にした構成で使う。
type Nop struct{}

func (Nop) ObserveRun(string, time.Duration) {}
func (Nop) SetSensorsRefreshed(int)          {}
func (Nop) IncDocumentsRendered()            {}
func (Nop) IncDeliveryFailure(string)        {}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	runs              *prometheus.CounterVec
	runDuration       prometheus.Histogram
	sensorsRefreshed  prometheus.Gauge
	documentsRendered prometheus.Counter
	deliveryFailures  *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tagreport_runs_total",
			Help: "レポート実行の合計数（結果別）",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tagreport_run_duration_seconds",
			Help:    "レポート実行1回の所要時間（秒）",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		sensorsRefreshed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tagreport_sensors_refreshed",
			Help: "直近のディレクトリ更新で取得したセンサー数",
		}),
		documentsRendered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tagreport_documents_rendered_total",
			Help: "生成したレポートドキュメントの合計数",
		}),
		deliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tagreport_delivery_failures_total",
			Help: "配送ステージの失敗数（シンク別）",
		}, []string{"sink"}),
	}

	reg.MustRegister(
		c.runs,
		c.runDuration,
		c.sensorsRefreshed,
		c.documentsRendered,
		c.deliveryFailures,
	)
	return c
}

// ObserveRun はレポート実行1回の結果と所要時間を記録する。
func (c *Collector) ObserveRun(status string, duration time.Duration) {
	c.runs.WithLabelValues(status).Inc()
	c.runDuration.Observe(duration.Seconds())
}

// SetSensorsRefreshed はディレクトリ更新で取得したセンサー数を記録する。
func (c *Collector) SetSensorsRefreshed(count int) {
	c.sensorsRefreshed.Set(float64(count))
}

// IncDocumentsRendered は生成したドキュメント数を加算する。
func (c *Collector) IncDocumentsRendered() {
	c.documentsRendered.Inc()
}

// IncDeliveryFailure は配送ステージの失敗を記録する。
func (c *Collector) IncDeliveryFailure(sink string) {
	c.deliveryFailures.WithLabelValues(sink).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
