package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	contactSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portfolio",
			Subsystem: "contact",
			Name:      "submissions_total",
			Help:      "联系表单提交次数，按处理结果区分。",
		},
		[]string{"outcome"},
	)

	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portfolio",
			Subsystem: "upload",
			Name:      "files_total",
			Help:      "上传文件次数，按类型与结果区分。",
		},
		[]string{"kind", "outcome"},
	)
)

// ObserveContactSubmission 记录一次联系表单提交的结果。
func ObserveContactSubmission(outcome string) {
	contactSubmissionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveUpload 记录一次上传的结果。
func ObserveUpload(kind, outcome string) {
	uploadsTotal.WithLabelValues(kind, outcome).Inc()
}
