package world

import "github.com/prometheus/client_golang/prometheus"

var (
	resolveTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "autotile",
		Name:      "resolve_total",
		Help:      "Число разрешённых клеток.",
	})
	redrawRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "autotile",
		Name:      "redraw_requests_total",
		Help:      "Запросы перерисовки, включая повторные.",
	})
	tilesPlacedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autotile",
		Name:      "tiles_placed_total",
		Help:      "Изменения клеток по карте.",
	}, []string{"map"})
	redrawPending = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "autotile",
		Name:      "redraw_pending",
		Help:      "Клетки, ожидающие перерисовки.",
	}, []string{"map"})
)

func init() {
	prometheus.MustRegister(resolveTotal, redrawRequestsTotal, tilesPlacedTotal, redrawPending)
}
