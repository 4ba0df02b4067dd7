package network

import "github.com/prometheus/client_golang/prometheus"

var (
	feedSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "autotile",
		Subsystem: "feed",
		Name:      "sessions",
		Help:      "Активные подписки на ленту перерисовки.",
	})
	feedFramesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "autotile",
		Subsystem: "feed",
		Name:      "frames_total",
		Help:      "Отправленные кадры.",
	})
	feedBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "autotile",
		Subsystem: "feed",
		Name:      "bytes_total",
		Help:      "Отправленные байты после сжатия.",
	})
	feedDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "autotile",
		Subsystem: "feed",
		Name:      "dropped_total",
		Help:      "Кадры, отброшенные из-за медленного клиента.",
	})
)

func init() {
	prometheus.MustRegister(feedSessions, feedFramesTotal, feedBytesTotal, feedDroppedTotal)
}
