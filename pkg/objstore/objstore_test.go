package objstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_ContentAddressed(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	cid, err := store.Put(ctx, []Blob{{Name: "a", Data: []byte("payload")}})
	require.NoError(t, err)
	require.NotEmpty(t, cid)

	// Same content, same address.
	again, err := store.Put(ctx, []Blob{{Name: "a", Data: []byte("payload")}})
	require.NoError(t, err)
	assert.Equal(t, cid, again)

	other, err := store.Put(ctx, []Blob{{Name: "a", Data: []byte("different")}})
	require.NoError(t, err)
	assert.NotEqual(t, cid, other)

	blobs, ok := store.Get(cid)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), blobs[0].Data)
}

func TestHTTPStore_Put(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, header, err := r.FormFile("file")
		require.NoError(t, err)
		assert.Equal(t, "cat.png", header.Filename)
		_ = json.NewEncoder(w).Encode(map[string]string{"cid": "bafytestcid"})
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL, "secret-token")
	cid, err := store.Put(context.Background(), []Blob{{Name: "cat.png", Data: []byte("encrypted")}})
	require.NoError(t, err)
	assert.Equal(t, "bafytestcid", cid)
	assert.Equal(t, "Bearer secret-token", gotAuth)
}

func TestHTTPStore_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusPaymentRequired)
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL, "t")
	_, err := store.Put(context.Background(), []Blob{{Name: "x", Data: []byte("d")}})
	require.ErrorContains(t, err, "402")
}

func TestHTTPStore_MissingCID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL, "t")
	_, err := store.Put(context.Background(), []Blob{{Name: "x", Data: []byte("d")}})
	require.ErrorContains(t, err, "no cid")
}
