package ipfs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Dhenz14/HivePoA-sub000/shared/testutil/assert"
	"github.com/Dhenz14/HivePoA-sub000/shared/testutil/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	return c
}

func TestNewClient_RejectsBadAddress(t *testing.T) {
	_, err := NewClient("ftp://127.0.0.1:5001")
	require.ErrorContains(t, "unsupported IPFS API scheme", err)
}

func TestClient_Cat(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v0/cat", r.URL.Path)
		assert.Equal(t, "QmBlob", r.URL.Query().Get("arg"))
		_, err := w.Write([]byte("raw blob bytes"))
		require.NoError(t, err)
	})
	data, err := c.Cat(context.Background(), "QmBlob")
	require.NoError(t, err)
	assert.DeepEqual(t, []byte("raw blob bytes"), data)
}

func TestClient_RecursiveRefs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v0/refs", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("recursive"))
		_, err := w.Write([]byte(`{"Ref":"QmA","Err":""}` + "\n" + `{"Ref":"QmB","Err":""}` + "\n\n" + `{"Ref":"QmC","Err":""}` + "\n"))
		require.NoError(t, err)
	})
	refs, err := c.RecursiveRefs(context.Background(), "QmRoot")
	require.NoError(t, err)
	assert.DeepEqual(t, []string{"QmA", "QmB", "QmC"}, refs)
}

func TestClient_RecursiveRefs_ErrLine(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, err := w.Write([]byte(`{"Ref":"QmA","Err":""}` + "\n" + `{"Ref":"","Err":"merkledag: not found"}` + "\n"))
		require.NoError(t, err)
	})
	_, err := c.RecursiveRefs(context.Background(), "QmRoot")
	require.ErrorContains(t, "merkledag: not found", err)
}

func TestClient_Add(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v0/add", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("pin"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, err := w.Write([]byte(`{"Name":"report.json","Hash":"QmNew","Size":"42"}`))
		require.NoError(t, err)
	})
	cid, err := c.Add(context.Background(), "report.json", []byte(`{"ok":true}`))
	require.NoError(t, err)
	assert.Equal(t, "QmNew", cid)
}

func TestClient_ID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v0/id", r.URL.Path)
		_, err := w.Write([]byte(`{"ID":"12D3KooWPeer"}`))
		require.NoError(t, err)
	})
	id, err := c.ID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "12D3KooWPeer", id)
}

func TestClient_APIErrorSurfaced(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, err := w.Write([]byte(`{"Message":"invalid path","Code":0}`))
		require.NoError(t, err)
	})
	_, err := c.Cat(context.Background(), "notacid")
	require.ErrorContains(t, "invalid path", err)
}

func TestClient_ContextDeadline(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Cat(ctx, "QmBlob")
	require.NotNil(t, err)
}
