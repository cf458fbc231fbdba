package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_Idempotent(t *testing.T) {
	Init()
	Init()

	// Recording must not panic once initialized.
	ObserveFetch(OutcomeSuccess)
	ObserveFetch(OutcomeNotFound)
	IncChallenge()
	ObserveParse(true)
	ObserveParse(false)
	ObservePersist(true)
	ObservePersist(false)
	IncInFlight()
	DecInFlight()
}

func TestHandler_ServesCollectors(t *testing.T) {
	Init()
	ObserveFetch(OutcomeSuccess)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "catalog_fetches_total")
}
