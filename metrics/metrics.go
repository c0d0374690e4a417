package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robertof/go-flextrack/channel"
	"github.com/robertof/go-flextrack/plan"
	"github.com/robertof/go-flextrack/session"
)

var (
	descChannelValue = prometheus.NewDesc(
		"flextrack_channel_value",
		"Latest value decoded for the channel.",
		[]string{"channel"},
		nil,
	)

	descSessionState = prometheus.NewDesc(
		"flextrack_session_state",
		"Current session state; the series of the active state is 1.",
		[]string{"state", "reason"},
		nil,
	)
)

// Sample is what the collector exports on every scrape.
type Sample struct {
	Values map[plan.Channel]channel.Value
	State  session.State
}

type CollectFunc func() Sample

type collector struct {
	CollectFunc
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descChannelValue
	ch <- descSessionState
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	s := c.CollectFunc()

	for name, v := range s.Values {
		value := prometheus.MustNewConstMetric(
			descChannelValue,
			prometheus.GaugeValue,
			float64(v.Value),
			string(name),
		)

		ch <- prometheus.NewMetricWithTimestamp(v.At, value)
	}

	ch <- prometheus.MustNewConstMetric(
		descSessionState,
		prometheus.GaugeValue,
		1,
		s.State.Kind.String(),
		s.State.Reason,
	)
}

func RegisterCollector(f CollectFunc, reg prometheus.Registerer) {
	reg.MustRegister(&collector{f})
}
