package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderCountsPerLabel(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.RecordEventPublished("Bar")
	r.RecordEventPublished("Bar")
	r.RecordPublishFailure("Order")
	r.RecordOrderTransition("Placed", "Filled")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.eventsPublished.WithLabelValues("Bar")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.publishFailures.WithLabelValues("Order")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.orderTransitions.WithLabelValues("Placed", "Filled")))
}
