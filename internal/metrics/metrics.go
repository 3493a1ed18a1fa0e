package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "battleship"

var (
	// Registry is nil until Init is called; every Record* is a no-op until then.
	Registry *prometheus.Registry

	collector *GameMetricsCollector
)

// GameMetricsCollector holds the counters for game, room and store events.
type GameMetricsCollector struct {
	gamesCreated  prometheus.Counter
	gamesFinished *prometheus.CounterVec
	shots         *prometheus.CounterVec
	conflicts     *prometheus.CounterVec
	cleanedUp     prometheus.Counter
	roomsCreated  prometheus.Counter
	matches       prometheus.Counter
}

func NewGameMetricsCollector() *GameMetricsCollector {
	return &GameMetricsCollector{
		gamesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "games",
			Name:      "created_total",
			Help:      "Games created",
		}),
		gamesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "games",
			Name:      "finished_total",
			Help:      "Games finished by how they ended",
		}, []string{"reason"}),
		shots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "games",
			Name:      "shots_total",
			Help:      "Accepted shots by outcome",
		}, []string{"result"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "conflicts_total",
			Help:      "Optimistic updates lost to a concurrent writer",
		}, []string{"operation"}),
		cleanedUp: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "games",
			Name:      "cleaned_up_total",
			Help:      "Finished games removed by the retention sweep",
		}),
		roomsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rooms",
			Name:      "created_total",
			Help:      "Rooms created",
		}),
		matches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matchmaking",
			Name:      "matches_total",
			Help:      "Player pairs matched from the queue",
		}),
	}
}

func (c *GameMetricsCollector) Register(registry *prometheus.Registry) error {
	for _, metric := range []prometheus.Collector{
		c.gamesCreated,
		c.gamesFinished,
		c.shots,
		c.conflicts,
		c.cleanedUp,
		c.roomsCreated,
		c.matches,
	} {
		if err := registry.Register(metric); err != nil {
			return err
		}
	}
	return nil
}

// Init creates the registry and registers the collectors. Call once at startup.
func Init() error {
	registry := prometheus.NewRegistry()
	c := NewGameMetricsCollector()
	if err := c.Register(registry); err != nil {
		return err
	}
	Registry = registry
	collector = c
	return nil
}

func IsEnabled() bool {
	return collector != nil
}

// Handler serves the registry, or 404s when metrics are disabled.
func Handler() http.Handler {
	if Registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func RecordGameCreated() {
	if collector != nil {
		collector.gamesCreated.Inc()
	}
}

func RecordGameFinished(reason string) {
	if collector != nil {
		collector.gamesFinished.WithLabelValues(reason).Inc()
	}
}

func RecordShot(hit, sunk bool) {
	if collector == nil {
		return
	}
	result := "miss"
	switch {
	case sunk:
		result = "sunk"
	case hit:
		result = "hit"
	}
	collector.shots.WithLabelValues(result).Inc()
}

func RecordConflict(operation string) {
	if collector != nil {
		collector.conflicts.WithLabelValues(operation).Inc()
	}
}

func RecordCleanup(deleted int) {
	if collector != nil && deleted > 0 {
		collector.cleanedUp.Add(float64(deleted))
	}
}

func RecordRoomCreated() {
	if collector != nil {
		collector.roomsCreated.Inc()
	}
}

func RecordMatch() {
	if collector != nil {
		collector.matches.Inc()
	}
}
