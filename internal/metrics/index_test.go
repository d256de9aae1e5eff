package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterIndexMetrics_Idempotent(t *testing.T) {
	RegisterIndexMetrics()
	RegisterIndexMetrics()

	before := testutil.ToFloat64(ReindexRunsTotal.WithLabelValues("locked"))
	ReindexRunsTotal.WithLabelValues("locked").Inc()
	if got := testutil.ToFloat64(ReindexRunsTotal.WithLabelValues("locked")); got != before+1 {
		t.Errorf("expected %f, got %f", before+1, got)
	}
}

func TestRegisterEmbeddingMetrics_Idempotent(t *testing.T) {
	RegisterEmbeddingMetrics()
	RegisterEmbeddingMetrics()
	EmbeddingInputsTotal.WithLabelValues("test", "m").Add(3)
	if got := testutil.ToFloat64(EmbeddingInputsTotal.WithLabelValues("test", "m")); got < 3 {
		t.Errorf("expected >= 3 inputs, got %f", got)
	}
}
