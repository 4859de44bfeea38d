package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestAddCallsIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.AddCalls("P2M", 5)
	r.AddCalls("P2M", 2)

	assert.Equal(t, float64(7), counterValue(t, r.passCalls.WithLabelValues("P2M")))
}

func TestTrackRunsFnAndPropagatesError(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	wantErr := errors.New("boom")
	err := r.Track(func() error { return wantErr })
	assert.Equal(t, wantErr, err)
}

func TestTimerRecordsAnObservation(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	stop := r.Timer("M2L", 3)
	stop()

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range metricFamilies {
		if mf.GetName() == "fmm_pass_duration_seconds" {
			found = true
			require.Len(t, mf.GetMetric(), 1)
			assert.Equal(t, uint64(1), mf.GetMetric()[0].GetHistogram().GetSampleCount())
		}
	}
	assert.True(t, found, "expected fmm_pass_duration_seconds to be registered")
}
