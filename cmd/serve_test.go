package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/specharvest/internal/model"
	"github.com/sells-group/specharvest/internal/store"
)

func setupServerStore(t *testing.T) (store.Store, *model.Run) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	run, err := st.CreateRun(ctx, "mouse-001", "gaming-mouse")
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, run.ID, &model.ConsensusResult{
		ProductID: "mouse-001",
		Fields:    map[string]string{"dpi": "16000"},
		Provenance: map[string]model.ProvenanceRecord{
			"dpi": {Value: "16000", ApprovedConfirmations: 4, PassTarget: 3, MeetsPassTarget: true, Confidence: 0.95},
		},
		Candidates: map[string][]model.CandidateLedgerEntry{
			"dpi": {{CandidateID: "abc123", Value: "16000", Host: "logitech.com"}},
		},
	}))
	return st, run
}

func TestRouter_Health(t *testing.T) {
	st, _ := setupServerStore(t)
	srv := httptest.NewServer(newRouter(st))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestRouter_ListRuns(t *testing.T) {
	st, run := setupServerStore(t)
	srv := httptest.NewServer(newRouter(st))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/runs?status=complete")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var runs []model.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runs))
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, model.RunStatusComplete, runs[0].Status)
}

func TestRouter_GetRun(t *testing.T) {
	st, run := setupServerStore(t)
	srv := httptest.NewServer(newRouter(st))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/runs/" + run.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got model.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.NotNil(t, got.Result)
	assert.Equal(t, "16000", got.Result.Fields["dpi"])
}

func TestRouter_GetRun_NotFound(t *testing.T) {
	st, _ := setupServerStore(t)
	srv := httptest.NewServer(newRouter(st))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/runs/no-such-run")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_Provenance(t *testing.T) {
	st, run := setupServerStore(t)
	srv := httptest.NewServer(newRouter(st))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/runs/" + run.ID + "/provenance")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rows []store.FieldProvenanceRow
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "dpi", rows[0].FieldKey)
	assert.Equal(t, "16000", rows[0].Value)
}

func TestRouter_Candidates(t *testing.T) {
	st, run := setupServerStore(t)
	srv := httptest.NewServer(newRouter(st))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/runs/" + run.ID + "/candidates")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ledger map[string][]model.CandidateLedgerEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ledger))
	require.Len(t, ledger["dpi"], 1)
	assert.Equal(t, "abc123", ledger["dpi"][0].CandidateID)
}
