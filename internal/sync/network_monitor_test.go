package sync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNetworkMonitorGoesOnlineAfterOneSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var transitions []string
	n := NewNetworkMonitor(DefaultNetworkMonitorConfig(srv.URL))
	n.OnStateChange = func(state string) { transitions = append(transitions, state) }

	n.checkOnce(context.Background())

	if n.State() != "online" {
		t.Fatalf("expected online after one success, got %s", n.State())
	}
	if len(transitions) != 1 || transitions[0] != "online" {
		t.Fatalf("expected a single online transition, got %v", transitions)
	}
}

func TestNetworkMonitorRequiresThreeConsecutiveFailuresToGoOffline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	n := NewNetworkMonitor(DefaultNetworkMonitorConfig(srv.URL))
	// Force starting state to online to observe the failure-driven transition.
	n.state = "online"

	var transitions []string
	n.OnStateChange = func(state string) { transitions = append(transitions, state) }

	n.checkOnce(context.Background())
	if n.State() != "online" {
		t.Fatalf("expected still online after 1 failure, got %s", n.State())
	}
	n.checkOnce(context.Background())
	if n.State() != "online" {
		t.Fatalf("expected still online after 2 failures, got %s", n.State())
	}
	n.checkOnce(context.Background())
	if n.State() != "offline" {
		t.Fatalf("expected offline after 3 consecutive failures, got %s", n.State())
	}
	if len(transitions) != 1 || transitions[0] != "offline" {
		t.Fatalf("expected exactly one offline transition fired, got %v", transitions)
	}
}

func TestNetworkMonitorNoCallbackFiredWhenStateUnchanged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNetworkMonitor(DefaultNetworkMonitorConfig(srv.URL))
	n.state = "online"

	fired := false
	n.OnStateChange = func(state string) { fired = true }

	n.checkOnce(context.Background())
	if fired {
		t.Fatalf("expected no callback when state does not change")
	}
}
