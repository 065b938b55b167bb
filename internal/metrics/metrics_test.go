package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitMetrics_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		InitMetrics()
		InitMetrics()
	})
}

func TestHandler_ExposesCounters(t *testing.T) {
	ReservationsTotal.WithLabelValues(OpCreate).Inc()
	PendingMoves.Set(3)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `hutch_reservations_total{op="create"}`)
	assert.Contains(t, string(body), "hutch_pending_moves 3")
	assert.Equal(t, float64(3), testutil.ToFloat64(PendingMoves))
}
