package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegistryCounters(t *testing.T) {
	r := New("test")

	r.ObserveRead("vault", "getBalance", 20*time.Millisecond, nil)
	r.ObserveRead("vault", "getBalance", time.Millisecond, errors.New("boom"))
	r.WriteStarted("vault")
	r.WriteSettled("vault", "deposit", "confirmed")
	r.Notified("vault", "success")
	r.CascadeRefetch("vault")
	r.CascadeRefetch("vault")
	r.StaleRace("game")

	require.Equal(t, 1.0, testutil.ToFloat64(r.reads.WithLabelValues("vault", "getBalance", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.reads.WithLabelValues("vault", "getBalance", "error")))
	require.Equal(t, 0.0, testutil.ToFloat64(r.writesPending.WithLabelValues("vault")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.writes.WithLabelValues("vault", "deposit", "confirmed")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.notifications.WithLabelValues("vault", "success")))
	require.Equal(t, 2.0, testutil.ToFloat64(r.refetches.WithLabelValues("vault")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.staleRaces.WithLabelValues("game")))
}

func TestNilRegistryIsSafe(t *testing.T) {
	var r *Registry
	require.NotPanics(t, func() {
		r.ObserveRead("a", "b", time.Second, nil)
		r.WriteStarted("a")
		r.WriteSettled("a", "b", "c")
		r.Notified("a", "b")
		r.CascadeRefetch("a")
		r.StaleRace("a")
	})
}

func TestHandler(t *testing.T) {
	r := New("")
	r.Notified("market", "failure")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	require.True(t, strings.Contains(body, `osb_notification_total{kind="failure",subsystem="market"} 1`), body)
}
