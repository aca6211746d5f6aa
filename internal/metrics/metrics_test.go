package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.Resolution(OutcomeHealed)
	m.Resolution(OutcomeHealed)
	m.GuardRejection("admin_only", "forbidden")
	m.Login("success")
	m.OAuthRequest("exchange_code", time.Now(), nil)
	m.OAuthRequest("exchange_code", time.Now(), errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.resolutions.WithLabelValues(OutcomeHealed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.guardRejections.WithLabelValues("admin_only", "forbidden")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.logins.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.oauthRequests.WithLabelValues("exchange_code", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.oauthRequests.WithLabelValues("exchange_code", "error")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Resolution(OutcomeResolved)
		m.GuardRejection("admin_only", "unauthorized")
		m.Login("error")
		m.OAuthRequest("profile_by_token", time.Now(), nil)
	})
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.Login("success")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `idevgames_logins_total{outcome="success"} 1`))
}
