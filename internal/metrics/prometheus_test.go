package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// Counters must be usable before (or without) InitCustomMetrics; services
// increment them from any entry point, including test binaries that never
// touch a registry.
func TestCountersLiveWithoutInit(t *testing.T) {
	before := testutil.ToFloat64(AuthorizeRequestsTotal)
	AuthorizeRequestsTotal.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(AuthorizeRequestsTotal))

	RateLimitedTotal.Inc()
	assert.Greater(t, testutil.ToFloat64(RateLimitedTotal), 0.0)
}

func TestInitCustomMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	InitCustomMetrics(reg)

	families, err := reg.Gather()
	assert.NoError(t, err)
	assert.Len(t, families, 6)

	// re-registration on the same registry must not panic
	InitCustomMetrics(reg)
}

func TestInitCustomMetricsNilRegistry(t *testing.T) {
	assert.NotPanics(t, func() { InitCustomMetrics(nil) })
}
