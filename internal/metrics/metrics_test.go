package metrics_test

import (
	"strings"
	"testing"

	"github.com/jrsteele09/go-blog-session/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.Refresh(metrics.RefreshSuccess)
	m.Refresh(metrics.RefreshSuccess)
	m.Refresh(metrics.RefreshFailure)
	m.Termination("logout")
	m.Retry("GET")

	require.Equal(t, 2.0, m.RefreshCount(metrics.RefreshSuccess))
	require.Equal(t, 1.0, m.RefreshCount(metrics.RefreshFailure))
	require.Equal(t, 1.0, m.TerminationCount("logout"))
	require.Equal(t, 1.0, m.RetryCount("GET"))

	expected := `
# HELP blog_session_terminations_total Session terminations by reason.
# TYPE blog_session_terminations_total counter
blog_session_terminations_total{reason="logout"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "blog_session_terminations_total"))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.Metrics
	m.Refresh(metrics.RefreshSuccess)
	m.Termination("logout")
	m.Retry("GET")
	require.Zero(t, m.RefreshCount(metrics.RefreshSuccess))
}
