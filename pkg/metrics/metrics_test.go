package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCyclesTotal(t *testing.T) {
	// Reset counter before test
	CyclesTotal.Reset()

	CyclesTotal.WithLabelValues("published").Inc()
	CyclesTotal.WithLabelValues("published").Inc()
	CyclesTotal.WithLabelValues("failed").Inc()

	count := testutil.ToFloat64(CyclesTotal.WithLabelValues("published"))
	if count != 2 {
		t.Errorf("Expected 2 published cycles, got %f", count)
	}

	count = testutil.ToFloat64(CyclesTotal.WithLabelValues("failed"))
	if count != 1 {
		t.Errorf("Expected 1 failed cycle, got %f", count)
	}
}

func TestObserveStage(t *testing.T) {
	StageDuration.Reset()

	ObserveStage("publish", time.Now().Add(-2*time.Second))

	if n := testutil.CollectAndCount(StageDuration); n != 1 {
		t.Errorf("Expected 1 stage series, got %d", n)
	}
}

func TestGauges(t *testing.T) {
	IdeaIndex.Set(4)
	if v := testutil.ToFloat64(IdeaIndex); v != 4 {
		t.Errorf("Expected idea index 4, got %f", v)
	}

	LastSuccessTimestamp.Set(1700000000)
	if v := testutil.ToFloat64(LastSuccessTimestamp); v != 1700000000 {
		t.Errorf("Expected timestamp 1700000000, got %f", v)
	}
}

func TestHandler(t *testing.T) {
	CyclesTotal.WithLabelValues("published").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "pedropost_cycles_total") {
		t.Errorf("Expected pedropost_cycles_total in /metrics output")
	}
}
