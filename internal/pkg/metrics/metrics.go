package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// 指标在声明时创建，InitMetrics 只负责注册，
// 这样未注册时（部分单测）计数器依然可用。
var (
	CSVUploadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "verifai_csv_uploads_total",
		Help: "Total number of CSV upload requests accepted for ingestion.",
	})

	RowsUploadedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "verifai_rows_uploaded_total",
		Help: "Total number of guest rows appended to the warehouse table.",
	})

	RowsDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "verifai_rows_dropped_total",
		Help: "Total number of CSV rows dropped for an empty email after sanitization.",
	})

	VerificationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "verifai_verifications_total",
		Help: "Total number of guest verification lookups.",
	})

	CheckinsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "verifai_checkins_total",
		Help: "Total number of attendance markings triggered by verification.",
	})

	UploadDuplicatePreventedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "verifai_upload_duplicate_prevented_total",
		Help: "Total number of duplicate CSV uploads skipped by the dedup window.",
	})

	RateLimitRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "verifai_ratelimit_rejected_total",
		Help: "Total number of upload requests rejected by the rate limiter.",
	})

	UploadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "verifai_upload_duration_seconds",
		Help:    "Wall time of CSV ingestion including the warehouse insert job.",
		Buckets: prometheus.DefBuckets,
	})
)

var initOnce sync.Once

// InitMetrics 将所有指标注册到默认 Registry（幂等）。
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			CSVUploadsTotal,
			RowsUploadedTotal,
			RowsDroppedTotal,
			VerificationsTotal,
			CheckinsTotal,
			UploadDuplicatePreventedTotal,
			RateLimitRejectedTotal,
			UploadDuration,
		)
	})
}
