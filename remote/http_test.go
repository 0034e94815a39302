package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medistock/syncengine/entity"
	syncErrors "github.com/medistock/syncengine/errors"
)

func TestGetByIDAbsentReturnsNilNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("apikey"))
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	repo := NewClient(srv.URL, "test-key").Repo(entity.KindProduct)
	payload, err := repo.GetByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Nil(t, payload)
}

func TestGetByIDReturnsRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/products", r.URL.Path)
		assert.Equal(t, "id=eq.p1", r.URL.RawQuery)
		w.Write([]byte(`[{"id":"p1","name":"Paracetamol"}]`))
	}))
	defer srv.Close()

	repo := NewClient(srv.URL, "k").Repo(entity.KindProduct)
	payload, err := repo.GetByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"p1","name":"Paracetamol"}`, string(payload))
}

func TestUpsertStampsClientID(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	repo := NewClient(srv.URL, "k", WithClientID("install-42")).Repo(entity.KindCustomer)
	err := repo.Upsert(context.Background(), "c1", json.RawMessage(`{"id":"c1","name":"A"}`))
	require.NoError(t, err)

	assert.Equal(t, "install-42", received["client_id"])
	assert.Equal(t, "A", received["name"])
}

func TestDeleteAbsentIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	repo := NewClient(srv.URL, "k").Repo(entity.KindCustomer)
	assert.NoError(t, repo.Delete(context.Background(), "gone"))
}

func TestServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	repo := NewClient(srv.URL, "k").Repo(entity.KindProduct)
	_, err := repo.GetByID(context.Background(), "p1")
	require.Error(t, err)
	assert.True(t, syncErrors.IsRetryable(err))
}

func TestClientErrorIsNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	repo := NewClient(srv.URL, "k").Repo(entity.KindProduct)
	err := repo.Upsert(context.Background(), "p1", json.RawMessage(`{"id":"p1"}`))
	require.Error(t, err)
	assert.False(t, syncErrors.IsRetryable(err))
}

func TestGetAllKeysByID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"a","v":1},{"id":"b","v":2}]`))
	}))
	defer srv.Close()

	repo := NewClient(srv.URL, "k").Repo(entity.KindSite)
	all, err := repo.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.JSONEq(t, `{"id":"a","v":1}`, string(all["a"]))
}
