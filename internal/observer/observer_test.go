package observer

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/statestore/internal/state"
)

func TestLogging_Observe(t *testing.T) {
	// Arrange
	core, logs := observer.New(zapcore.DebugLevel)
	obs := NewLogging(zap.New(core))

	rejected := state.Lifecycle("createUser", state.PhaseRejected)
	rejected.Err = "invalid data"
	rejected.Elapsed = 20 * time.Millisecond

	// Act
	obs.Observe(state.Transition{Store: "async-store", Action: state.Lifecycle("createUser", state.PhasePending), Seq: 1})
	obs.Observe(state.Transition{Store: "async-store", Action: rejected, Seq: 2})

	// Assert
	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("log entries = %d, want 2", len(entries))
	}
	if entries[0].Level != zapcore.DebugLevel {
		t.Errorf("pending level = %s, want debug", entries[0].Level)
	}
	if entries[1].Level != zapcore.WarnLevel {
		t.Errorf("rejected level = %s, want warn", entries[1].Level)
	}
	ctx := entries[1].ContextMap()
	if ctx["action"] != "createUser/rejected" {
		t.Errorf("action = %v, want createUser/rejected", ctx["action"])
	}
	if ctx["error"] != "invalid data" {
		t.Errorf("error = %v, want invalid data", ctx["error"])
	}
	if _, ok := ctx["elapsed"]; !ok {
		t.Error("rejected entry should carry elapsed")
	}
}

func TestMetrics_Observe(t *testing.T) {
	// Arrange
	m := NewMetrics()
	const storeName = "metrics-test-store"
	fulfilled := state.Lifecycle("fetchUsers", state.PhaseFulfilled)
	fulfilled.Elapsed = 15 * time.Millisecond

	// Act
	m.Observe(state.Transition{Store: storeName, Action: state.Lifecycle("fetchUsers", state.PhasePending)})
	m.Observe(state.Transition{Store: storeName, Action: state.Lifecycle("fetchUsers", state.PhasePending)})
	inFlightBoth := testutil.ToFloat64(operationsInFlight.WithLabelValues(storeName, "fetchUsers"))
	m.Observe(state.Transition{Store: storeName, Action: fulfilled})
	m.Observe(state.Transition{Store: storeName, Action: state.Named("clearUsers")})

	// Assert
	if inFlightBoth != 2 {
		t.Errorf("in flight = %v, want 2", inFlightBoth)
	}
	if got := testutil.ToFloat64(operationsInFlight.WithLabelValues(storeName, "fetchUsers")); got != 1 {
		t.Errorf("in flight after resolution = %v, want 1", got)
	}
	if got := testutil.ToFloat64(transitionsTotal.WithLabelValues(storeName, "fetchUsers/pending")); got != 2 {
		t.Errorf("pending transitions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(transitionsTotal.WithLabelValues(storeName, "clearUsers")); got != 1 {
		t.Errorf("clearUsers transitions = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(operationDuration); got < 1 {
		t.Errorf("duration series = %d, want at least 1", got)
	}
}
