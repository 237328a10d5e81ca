package clocksync

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/otpvault/pkg/ntp"
)

const (
	namespace = "otpvault"
	subsystem = "clock"

	labelResult = "result"

	resultSuccess     = "success"
	resultTimeout     = "timeout"
	resultUnreachable = "unreachable"
	resultInvalid     = "invalid"
	resultError       = "error"
)

type metrics struct {
	syncs     *prometheus.CounterVec
	offset    prometheus.Gauge
	roundTrip prometheus.Gauge
	lastSync  prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		syncs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "syncs_total",
				Help:      "Clock synchronisation attempts by result",
			},
			[]string{labelResult},
		),
		offset: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "offset_seconds",
			Help:      "Offset currently applied to the local clock",
		}),
		roundTrip: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "round_trip_seconds",
			Help:      "Round-trip delay of the last successful exchange",
		}),
		lastSync: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "last_sync_timestamp_seconds",
			Help:      "Unix time of the last successful synchronisation",
		}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.syncs, m.offset, m.roundTrip, m.lastSync} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Join(ErrMetrics, err)
		}
	}
	return m, nil
}

func (m *metrics) observe(resp *ntp.Response, err error) {
	if err != nil {
		m.syncs.WithLabelValues(resultLabel(err)).Inc()
		return
	}
	m.syncs.WithLabelValues(resultSuccess).Inc()
	m.offset.Set(resp.Offset.Seconds())
	m.roundTrip.Set(resp.RoundTripDelay.Seconds())
	m.lastSync.Set(float64(resp.ServerTime.Unix()))
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ntp.ErrSyncTimeout):
		return resultTimeout
	case errors.Is(err, ntp.ErrSyncUnreachable):
		return resultUnreachable
	case errors.Is(err, ntp.ErrInvalidResponse):
		return resultInvalid
	default:
		return resultError
	}
}
