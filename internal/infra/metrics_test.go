package infra

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"pricestream/internal/domain"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.FrameReceived("finnhub")
	m.FrameReceived("finnhub")
	m.TradesDecoded("finnhub", 3)
	m.SendFailed("finnhub", "subscribe")
	m.ProviderError("finnhub")

	if got := testutil.ToFloat64(m.framesTotal.WithLabelValues("finnhub")); got != 2 {
		t.Errorf("Expected 2 frames, got %v", got)
	}
	if got := testutil.ToFloat64(m.tradesTotal.WithLabelValues("finnhub")); got != 3 {
		t.Errorf("Expected 3 trades, got %v", got)
	}
	if got := testutil.ToFloat64(m.sendErrors.WithLabelValues("finnhub", "subscribe")); got != 1 {
		t.Errorf("Expected 1 send error, got %v", got)
	}

	snap := m.Snapshot()
	if snap.Frames != 2 || snap.Trades != 3 || snap.Errors != 2 {
		t.Errorf("Unexpected snapshot: %+v", snap)
	}
}

func TestMetrics_State(t *testing.T) {
	m := NewMetrics()

	if m.Snapshot().State != "disconnected" {
		t.Error("Expected disconnected initially")
	}

	m.SetState("coinbase", domain.StateReady)
	if got := testutil.ToFloat64(m.connectionState.WithLabelValues("coinbase")); got != float64(domain.StateReady) {
		t.Errorf("Expected gauge %d, got %v", domain.StateReady, got)
	}
	if m.Snapshot().State != "ready" {
		t.Errorf("Expected ready, got %s", m.Snapshot().State)
	}

	m.ReconnectScheduled("coinbase")
	if m.Snapshot().Reconnects != 1 {
		t.Error("Expected 1 reconnect")
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.PingSent("finnhub")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `pricestream_pings_sent_total{feed="finnhub"} 1`) {
		t.Errorf("ping counter missing from exposition:\n%s", body)
	}
}

func TestMetrics_Independent(t *testing.T) {
	// Separate registries must not collide.
	a, b := NewMetrics(), NewMetrics()
	a.FrameReceived("x")
	if b.Snapshot().Frames != 0 {
		t.Error("metrics instances share state")
	}
}
