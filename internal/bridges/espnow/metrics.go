package espnow

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the bridge's Prometheus collectors. It is a StateSink and
// an EventSink.
type Metrics struct {
	framesTotal     *prometheus.CounterVec
	eventsTotal     *prometheus.CounterVec
	sensorsTotal    *prometheus.CounterVec
	sensorValue     *prometheus.GaugeVec
	publishesTotal  *prometheus.CounterVec
	serialReconnect prometheus.Counter
	nodesKnown      prometheus.GaugeFunc
}

// Frame results.
const (
	frameOK      = "ok"
	frameNoise   = "noise"
	frameInvalid = "invalid"
	frameNoMAC   = "missing_mac"
	frameError   = "error"
)

// NewMetrics creates and registers the collectors on reg. nodes backs the
// known-nodes gauge and may be nil.
func NewMetrics(reg prometheus.Registerer, nodes *NodeRegistry) (*Metrics, error) {
	m := &Metrics{
		framesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "espnow_frames_total",
			Help: "Lines read from the gateway by result.",
		}, []string{"result"}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "espnow_events_total",
			Help: "Events fired by type.",
		}, []string{"type"}),
		sensorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "espnow_sensors_discovered_total",
			Help: "Sensors created or reattached by platform.",
		}, []string{"platform"}),
		sensorValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "espnow_sensor_value",
			Help: "Last numeric value of each sensor.",
		}, []string{"mac", "path", "unit"}),
		publishesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "espnow_mqtt_publishes_total",
			Help: "MQTT publishes by result.",
		}, []string{"result"}),
		serialReconnect: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "espnow_serial_reconnects_total",
			Help: "Serial port reopen attempts.",
		}),
	}

	collectors := []prometheus.Collector{
		m.framesTotal, m.eventsTotal, m.sensorsTotal, m.sensorValue,
		m.publishesTotal, m.serialReconnect,
	}
	if nodes != nil {
		m.nodesKnown = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "espnow_nodes",
			Help: "Known ESP-NOW nodes.",
		}, func() float64 { return float64(nodes.Len()) })
		collectors = append(collectors, m.nodesKnown)
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveFrame counts one HandleLine result.
func (m *Metrics) ObserveFrame(err error) {
	if m == nil {
		return
	}
	result := frameOK
	switch {
	case err == nil:
	case errors.Is(err, ErrNotProtocolLine):
		result = frameNoise
	case errors.Is(err, ErrInvalidFrame):
		result = frameInvalid
	case errors.Is(err, ErrMissingMAC):
		result = frameNoMAC
	default:
		result = frameError
	}
	m.framesTotal.WithLabelValues(result).Inc()
}

// ObservePublish counts one MQTT publish outcome.
func (m *Metrics) ObservePublish(result string) {
	if m == nil {
		return
	}
	m.publishesTotal.WithLabelValues(result).Inc()
}

// ObserveReconnect counts one serial reopen attempt.
func (m *Metrics) ObserveReconnect() {
	if m == nil {
		return
	}
	m.serialReconnect.Inc()
}

// SensorDiscovered implements StateSink.
func (m *Metrics) SensorDiscovered(u SensorUpdate) {
	m.sensorsTotal.WithLabelValues(u.Sensor.Kind.String()).Inc()
}

// StateChanged implements StateSink. Only numeric and boolean states are
// exported.
func (m *Metrics) StateChanged(u SensorUpdate) {
	var v float64
	switch st := u.Sensor.State.(type) {
	case string:
		switch st {
		case StateOn:
			v = 1
		case StateOff:
			v = 0
		default:
			return
		}
	default:
		num, ok := asNumber(st)
		if !ok {
			return
		}
		v = num
	}
	m.sensorValue.WithLabelValues(u.MAC, u.Sensor.Path, u.Sensor.Unit).Set(v)
}

// EventFired implements EventSink.
func (m *Metrics) EventFired(ev Event) {
	m.eventsTotal.WithLabelValues(ev.Type()).Inc()
}
