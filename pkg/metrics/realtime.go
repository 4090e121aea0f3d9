package metrics

import "github.com/prometheus/client_golang/prometheus"

// RealtimeMetrics records hub fan-out activity.
type RealtimeMetrics struct {
	connections  prometheus.Gauge
	eventsIn     prometheus.Counter
	eventsOut    prometheus.Counter
	dropped      prometheus.Counter
	disconnected prometheus.Counter
}

// NewRealtimeMetrics registers the hub metrics on the provided registerer.
func NewRealtimeMetrics(reg prometheus.Registerer) *RealtimeMetrics {
	if reg == nil {
		return &RealtimeMetrics{}
	}
	connections := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_connections",
		Help: "Currently authenticated dashboard connections.",
	})
	eventsIn := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realtime_events_received_total",
		Help: "Events received from the tracking subscription.",
	})
	eventsOut := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realtime_events_delivered_total",
		Help: "Event copies delivered to dashboard connections.",
	})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realtime_events_dropped_total",
		Help: "Event copies dropped because a connection buffer was full.",
	})
	disconnected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realtime_disconnects_total",
		Help: "Connections removed after close or write failure.",
	})
	reg.MustRegister(connections, eventsIn, eventsOut, dropped, disconnected)
	return &RealtimeMetrics{
		connections:  connections,
		eventsIn:     eventsIn,
		eventsOut:    eventsOut,
		dropped:      dropped,
		disconnected: disconnected,
	}
}

func (m *RealtimeMetrics) SetConnections(n int) {
	if m == nil || m.connections == nil {
		return
	}
	m.connections.Set(float64(n))
}

func (m *RealtimeMetrics) IncEventsReceived() {
	if m == nil || m.eventsIn == nil {
		return
	}
	m.eventsIn.Inc()
}

func (m *RealtimeMetrics) AddEventsDelivered(n int) {
	if m == nil || m.eventsOut == nil {
		return
	}
	m.eventsOut.Add(float64(n))
}

func (m *RealtimeMetrics) IncDropped() {
	if m == nil || m.dropped == nil {
		return
	}
	m.dropped.Inc()
}

func (m *RealtimeMetrics) IncDisconnected() {
	if m == nil || m.disconnected == nil {
		return
	}
	m.disconnected.Inc()
}
