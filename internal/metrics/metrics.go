// Package metrics defines the prometheus metric types exported by the
// daemon and provides convenience methods to add accounting to the
// transport, protocol engine, and dispatcher.
//
// When defining new operations or metrics, these are helpful values to
// track:
//   - things coming into or going out of the system: telegrams, bytes,
//     requests.
//   - the success or error status of any of the above.
//   - the distribution of processing latency.
package metrics

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TelegramLatencyHistogram tracks the time from submitting a master
	// telegram to receiving its final ACK/answer, by telegram direction.
	TelegramLatencyHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "ebusd_telegram_latency_seconds",
			Help: "master-to-completion telegram latency distribution (seconds)",
			Buckets: []float64{
				0.005, 0.01, 0.016, 0.025, 0.04, 0.063,
				0.1, 0.16, 0.25, 0.4, 0.63,
				1, 1.6, 2.5, 4, 6.3, 10,
			},
		},
		[]string{"direction"})

	// PollIntervalHistogram tracks the interval between two consecutive
	// polls issued by the dispatcher's poll queue.
	PollIntervalHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ebusd_poll_interval_seconds",
			Help:    "interval between dispatcher poll cycles (seconds)",
			Buckets: prometheus.LinearBuckets(0, 1, 20),
		},
	)

	// TelegramCount counts completed telegrams by direction and outcome.
	//
	// Provides metrics:
	//   ebusd_telegram_total
	// Example usage:
	//   metrics.TelegramCount.With(prometheus.Labels{"direction": "submit", "outcome": "ok"}).Inc()
	TelegramCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ebusd_telegram_total",
			Help: "The total number of telegrams processed, by direction and outcome.",
		}, []string{"direction", "outcome"})

	// ErrorCount measures the number of protocol errors by kind.
	//
	// Provides metrics:
	//   ebusd_error_total
	// Example usage:
	//   metrics.ErrorCount.With(prometheus.Labels{"kind": "CRC"}).Inc()
	ErrorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ebusd_error_total",
			Help: "The total number of protocol errors encountered, by kind.",
		}, []string{"kind"})

	// AddressConflictCount counts detections of another device answering
	// on the daemon's own master or slave address.
	AddressConflictCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ebusd_address_conflict_total",
			Help: "Number of times another device was seen using this daemon's own bus address.",
		},
	)

	// CacheSizeGauge tracks the number of distinct messages currently
	// held in the dispatcher's last-value cache.
	CacheSizeGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ebusd_cache_size",
			Help: "Number of distinct messages in the last-value cache.",
		},
	)

	// NotifySubscriberGauge tracks the number of active update-
	// notification subscribers.
	NotifySubscriberGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ebusd_notify_subscribers",
			Help: "Number of active update-notification subscribers.",
		},
	)

	// NewFileCount counts the number of rotated dump/log files created.
	//
	// Provides metrics:
	//   ebusd_new_file_total
	// Example usage:
	//   metrics.NewFileCount.Inc()
	NewFileCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ebusd_new_file_total",
			Help: "Number of rotated dump/log files created.",
		},
	)
)

// init logs that the metrics package has been loaded and its metrics
// registered. Registration happens automatically via promauto as soon as
// this package is imported.
func init() {
	log.Println("Prometheus metrics in ebusd.metrics are registered.")
}
