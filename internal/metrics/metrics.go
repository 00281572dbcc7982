// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder はメトリクス記録のインターフェース。
// ミドルウェアやサービス層、ワーカーから利用する。
type Recorder interface {
	RecordHTTPRequest(method, route string, statusCode int, duration time.Duration)
	RecordAuthFailure(reason string)
	RecordListingMutation(action string)
	RecordAccountDeletion(outcome string, listingsDeleted int64)
	RecordListingsPurged(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests     *prometheus.CounterVec
	httpLatency      *prometheus.HistogramVec
	authFailures     *prometheus.CounterVec
	listingMutations *prometheus.CounterVec
	accountDeletions *prometheus.CounterVec
	cascadedListings prometheus.Counter
	purgedListings   prometheus.Counter
}

var _ Recorder = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zagmarket_http_requests_total",
			Help: "ルートとステータスコード別のHTTPリクエスト数",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zagmarket_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zagmarket_auth_failures_total",
			Help: "理由別のセッション認証失敗数",
		}, []string{"reason"}),
		listingMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zagmarket_listing_mutations_total",
			Help: "操作別の出品変更数",
		}, []string{"action"}),
		accountDeletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zagmarket_account_deletions_total",
			Help: "結果別のアカウント削除数",
		}, []string{"outcome"}),
		cascadedListings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zagmarket_account_deletion_listings_total",
			Help: "アカウント削除に伴って削除された出品の合計数",
		}),
		purgedListings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zagmarket_listings_purged_total",
			Help: "保持期間切れで削除された出品の合計数",
		}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpLatency,
		c.authFailures,
		c.listingMutations,
		c.accountDeletions,
		c.cascadedListings,
		c.purgedListings,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエストの件数と処理時間を記録する。
// routeにはchiのルートパターンを渡し、IDでラベルが爆発しないようにする。
func (c *Collector) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordAuthFailure はセッション認証の失敗を記録する。
func (c *Collector) RecordAuthFailure(reason string) {
	c.authFailures.WithLabelValues(reason).Inc()
}

// RecordListingMutation は出品の作成・更新・削除を記録する。
func (c *Collector) RecordListingMutation(action string) {
	c.listingMutations.WithLabelValues(action).Inc()
}

// RecordAccountDeletion はアカウント削除の結果と、連鎖削除された出品数を記録する。
func (c *Collector) RecordAccountDeletion(outcome string, listingsDeleted int64) {
	c.accountDeletions.WithLabelValues(outcome).Inc()
	c.cascadedListings.Add(float64(listingsDeleted))
}

// RecordListingsPurged は保持期間切れで削除された出品数を記録する。
func (c *Collector) RecordListingsPurged(count int64) {
	c.purgedListings.Add(float64(count))
}

// Nop は何も記録しないRecorder。メトリクスを使わない構成やテストで使う。
type Nop struct{}

func (Nop) RecordHTTPRequest(string, string, int, time.Duration) {}
func (Nop) RecordAuthFailure(string)                             {}
func (Nop) RecordListingMutation(string)                         {}
func (Nop) RecordAccountDeletion(string, int64)                  {}
func (Nop) RecordListingsPurged(int64)                           {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
