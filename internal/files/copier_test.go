package files_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-orderlines/internal/files"
	"github.com/noah-isme/toko-orderlines/internal/resilience"
)

func newCopier(srv *httptest.Server, attempts int) files.HTTPCopier {
	return files.HTTPCopier{
		HTTP: &resilience.HTTPClient{
			Client:      srv.Client(),
			Target:      "file_service",
			MaxAttempts: attempts,
			BaseBackoff: time.Millisecond,
			Timeout:     time.Second,
		},
		BaseURL: srv.URL + "/",
	}
}

func TestCopyToOrderScope(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/files/copy" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ref":"order/42/logo.png"}`))
	}))
	defer srv.Close()

	ref, err := newCopier(srv, 1).CopyToOrderScope(context.Background(), "basket/logo.png")
	require.NoError(t, err)
	require.Equal(t, "order/42/logo.png", ref)
	require.Equal(t, map[string]string{"ref": "basket/logo.png", "scope": "order"}, got)
}

func TestCopyToOrderScopeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unknown file", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := newCopier(srv, 1).CopyToOrderScope(context.Background(), "missing")
	require.ErrorIs(t, err, files.ErrCopyRejected)
	require.ErrorContains(t, err, "unknown file")
}

func TestCopyToOrderScopeSingleAttemptByDefault(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newCopier(srv, 0).CopyToOrderScope(context.Background(), "a")
	var statusErr *resilience.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestCopyToOrderScopeEmptyResponseRef(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := newCopier(srv, 1).CopyToOrderScope(context.Background(), "a")
	require.ErrorIs(t, err, files.ErrCopyRejected)
}

func TestCopyToOrderScopeEmptyRef(t *testing.T) {
	c := files.HTTPCopier{HTTP: &resilience.HTTPClient{Client: http.DefaultClient}, BaseURL: "http://unused"}
	_, err := c.CopyToOrderScope(context.Background(), " ")
	require.ErrorIs(t, err, files.ErrCopyRejected)
}
