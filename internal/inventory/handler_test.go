package inventory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (http.Handler, *memoryRepo, Item) {
	t.Helper()
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	item, err := svc.CreateItem(context.Background(), CreateItemInput{Name: "Bolt", Price: decimal.NewFromInt(2), Quantity: 3})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Route("/api", NewHandler(nil, svc).MountRoutes)
	return r, repo, item
}

func TestHandlerCatalogReads(t *testing.T) {
	router, repo, item := newTestRouter(t)
	repo.receive(item.ID, 4)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/items/"+item.ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, 7, got.Quantity)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/items?limit=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data       []Item `json:"data"`
		Pagination struct {
			Total int `json:"total"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Pagination.Total)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/items/"+item.ID.String()+"/movements", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"goods_received"`)
}

func TestHandlerErrors(t *testing.T) {
	router, _, _ := newTestRouter(t)

	cases := []struct {
		name   string
		path   string
		status int
	}{
		{"unknown item", "/api/items/" + uuid.NewString(), http.StatusNotFound},
		{"bad id", "/api/items/nope", http.StatusBadRequest},
		{"bad movement limit", "/api/items/" + uuid.NewString() + "/movements?limit=x", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
			require.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestHandlerDoesNotWriteStock(t *testing.T) {
	router, repo, item := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/items", strings.NewReader(`{"name":"Nut","quantity":50}`)))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/items/"+item.ID.String()+"/adjustments", strings.NewReader(`{"delta":10}`)))
	require.NotEqual(t, http.StatusCreated, rec.Code)

	require.Len(t, repo.items, 1)
	require.Equal(t, 3, repo.items[item.ID].Quantity)
	require.Empty(t, repo.moves)
}
