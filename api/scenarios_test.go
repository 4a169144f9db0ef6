/*
scenarios_test.go - Tests for demo scenario loaders

Checks that each scenario builds the expected state through the real
workflows: seeded stock obeys the guards, deposits move the balance,
and statuses derive correctly.
*/
package api_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadScenario(t *testing.T, url, name string) {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, url+"/api/scenarios/load", map[string]any{"name": name})
	require.Equal(t, http.StatusOK, resp.StatusCode, "%v", body)
}

func TestScenarios_List(t *testing.T) {
	srv := newTestServer(t)

	resp, list := doJSONList(t, srv.URL+"/api/scenarios")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, list, 3)
	assert.Equal(t, "fresh-day", list[0]["name"])
}

func TestScenarios_FreshDay(t *testing.T) {
	// GIVEN: An empty database
	// WHEN: Loading fresh-day
	// THEN: Two batches exist, fully stocked, and the balance reflects
	//       capital minus the two batch costs

	srv := newTestServer(t)
	loadScenario(t, srv.URL, "fresh-day")

	_, today := doJSONList(t, srv.URL+"/api/stock-batches/today")
	require.Len(t, today, 2)
	assert.Equal(t, 40, id(today[0], "remaining"))
	assert.Equal(t, 25, id(today[1], "remaining"))

	_, bal := doJSON(t, http.MethodGet, srv.URL+"/api/ledger/balance", nil)
	assert.Equal(t, "65000", bal["balance"], "100000 - 20000 - 15000")
}

func TestScenarios_MidDay(t *testing.T) {
	// GIVEN: fresh-day state
	// WHEN: Loading mid-day
	// THEN: Two acquisitions are pending and stock is drawn down

	srv := newTestServer(t)
	loadScenario(t, srv.URL, "mid-day")

	_, pending := doJSONList(t, srv.URL+"/api/acquisitions/pending")
	assert.Len(t, pending, 2)

	_, today := doJSONList(t, srv.URL+"/api/stock-batches/today")
	require.Len(t, today, 2)
	assert.Equal(t, 22, id(today[0], "remaining"), "40 - 10 - 8")
	assert.Equal(t, 18, id(today[0], "taken"))
}

func TestScenarios_EndOfDay(t *testing.T) {
	// GIVEN: mid-day state
	// WHEN: Loading end-of-day
	// THEN: One acquisition is settled and its income is in the balance

	srv := newTestServer(t)
	loadScenario(t, srv.URL, "end-of-day")

	_, pending := doJSONList(t, srv.URL+"/api/acquisitions/pending")
	assert.Len(t, pending, 1, "only Bu Wati still owes")

	// 65000 + Bu Sri's deposit (10x1500 + 5x2000 = 25000)
	_, bal := doJSON(t, http.MethodGet, srv.URL+"/api/ledger/balance", nil)
	assert.Equal(t, "90000", bal["balance"])
}
