// Package metrics 定义了流水线的 Prometheus 指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DownloadsTotal 按最终状态统计下载任务。
	DownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "archive_depot",
		Name:      "downloads_total",
		Help:      "Remote downloads by terminal status.",
	}, []string{"status"})

	// DownloadedBytes 统计所有下载任务接收到的字节数。
	DownloadedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "archive_depot",
		Name:      "downloaded_bytes_total",
		Help:      "Bytes received by remote downloads.",
	})

	// ActiveDownloads 是仍在传输中的下载任务数。
	ActiveDownloads = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "archive_depot",
		Name:      "active_downloads",
		Help:      "Downloads that have not reached a terminal status.",
	})

	// AssembliesTotal 按结果统计装配请求，result 为 ok 或失败的 Kind。
	AssembliesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "archive_depot",
		Name:      "assemblies_total",
		Help:      "System configuration assemblies by result.",
	}, []string{"result"})

	// StageDuration 记录装配各阶段的耗时。
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "archive_depot",
		Name:      "assembly_stage_seconds",
		Help:      "Time spent in each assembly stage.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"stage"})
)
