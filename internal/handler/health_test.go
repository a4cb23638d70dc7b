package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/lending-ledger/internal/handler"
	"github.com/segyhp/lending-ledger/internal/repository"
)

func TestHealthHandler(t *testing.T) {
	db, err := repository.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "health.db"), repository.Options{})
	require.NoError(t, err)

	router := mux.NewRouter()
	handler.NewHealthHandler(db, nil, time.Second).RegisterRoutes(router)

	t.Run("liveness", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("ready without redis", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Data handler.HealthStatus `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "ok", body.Data.Checks["database"])
		assert.Equal(t, "disabled", body.Data.Checks["redis"])
	})

	t.Run("not ready once the database is gone", func(t *testing.T) {
		require.NoError(t, db.Close())

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), `"code":"NOT_READY"`)
	})
}
