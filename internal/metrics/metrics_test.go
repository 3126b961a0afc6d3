package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistration(t *testing.T) {
	collectors := []prometheus.Collector{
		DeliveriesTotal,
		BroadcastsTotal,
		BroadcastInProgress,
		BroadcastDuration,
		RegistrySize,
		RegistryPersistErrors,
		DownloaderRequestsTotal,
		DownloaderRequestDuration,
		CircuitBreakerState,
		CommandsTotal,
	}
	for _, c := range collectors {
		desc := make(chan *prometheus.Desc, 1)
		c.Describe(desc)
		close(desc)
		require.NotNil(t, <-desc, "metric should have a valid descriptor")
	}
}

func TestDeliveriesCounter(t *testing.T) {
	before := testutil.ToFloat64(DeliveriesTotal.WithLabelValues("sent"))
	DeliveriesTotal.WithLabelValues("sent").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(DeliveriesTotal.WithLabelValues("sent")))
}

func TestRegistrySizeGauge(t *testing.T) {
	RegistrySize.Set(42)
	assert.Equal(t, float64(42), testutil.ToFloat64(RegistrySize))
}
