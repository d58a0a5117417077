package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldt-labs/sqlbridge/config"
	qerrors "github.com/veldt-labs/sqlbridge/errors"
	"github.com/veldt-labs/sqlbridge/remote/memexec"
	"github.com/veldt-labs/sqlbridge/sql"
	"github.com/veldt-labs/sqlbridge/types"
)

func testRouter(t *testing.T) (chi.Router, *memexec.Executor) {
	t.Helper()
	store := memexec.New()
	store.Insert("account", map[string]types.QueryValue{
		"name":    types.StringValue("Contoso"),
		"revenue": types.NumberValue(125000),
	})
	store.Insert("account", map[string]types.QueryValue{
		"name":    types.StringValue("Fabrikam"),
		"revenue": types.NumberValue(87000),
	})

	engine := sql.NewEngine(config.DefaultEngineConfig(), store, store, nil)
	r := chi.NewRouter()
	NewRESTHandler(engine).RegisterRoutes(r)
	return r, store
}

func postJSON(t *testing.T, r chi.Router, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestQueryEndpoint(t *testing.T) {
	t.Run("ReturnsRows", func(t *testing.T) {
		r, _ := testRouter(t)
		rec := postJSON(t, r, "/api/query", QueryRequest{
			SQL: "SELECT name FROM account WHERE revenue > 100000",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var result types.QueryResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.Equal(t, int64(1), result.RowCount)
		assert.Contains(t, result.NativeQuery, `name="account"`)
	})

	t.Run("ParseErrorIs400", func(t *testing.T) {
		r, _ := testRouter(t)
		rec := postJSON(t, r, "/api/query", QueryRequest{SQL: "SELECT FROM FROM"})
		require.Equal(t, http.StatusBadRequest, rec.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, qerrors.CodeParse, resp.Code)
	})

	t.Run("MissingSQLIs400", func(t *testing.T) {
		r, _ := testRouter(t)
		rec := postJSON(t, r, "/api/query", QueryRequest{})
		require.Equal(t, http.StatusBadRequest, rec.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Contains(t, resp.Error, "missing sql")
	})

	t.Run("MalformedBodyIs400", func(t *testing.T) {
		r, _ := testRouter(t)
		req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader([]byte("{nope")))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("BlockedDmlIs403ThenConfirmedSucceeds", func(t *testing.T) {
		r, _ := testRouter(t)
		rec := postJSON(t, r, "/api/query", QueryRequest{
			SQL: "DELETE FROM account WHERE revenue > 0",
		})
		require.Equal(t, http.StatusForbidden, rec.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, qerrors.CodeDmlBlocked, resp.Code)

		rec = postJSON(t, r, "/api/query", QueryRequest{
			SQL:     "DELETE FROM account WHERE revenue > 0",
			Options: QueryOptions{Confirmed: true},
		})
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestExplainEndpoint(t *testing.T) {
	r, store := testRouter(t)
	rec := postJSON(t, r, "/api/explain", QueryRequest{
		SQL: "SELECT name FROM account",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ExplainResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Plan, "Execution Plan:")
	assert.Contains(t, resp.Plan, "FetchScan(account)")
	assert.Equal(t, 0, store.ExecuteCount)
}

func TestScriptEndpoint(t *testing.T) {
	r, _ := testRouter(t)
	rec := postJSON(t, r, "/api/script", QueryRequest{
		SQL: "SELECT name FROM account; SELECT COUNT(*) FROM account",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ScriptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, int64(2), resp.Results[0].RowCount)
}
