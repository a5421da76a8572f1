package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestGetDecodesPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/events/1", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Accept"))
		require.Empty(t, r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(`{"event":{"id":"1","title":"Launch"}}`))
	}))
	defer srv.Close()

	client, err := New(srv.URL + "/api/")
	require.NoError(t, err)

	var out struct {
		Event struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"event"`
	}
	require.NoError(t, client.Get(context.Background(), "/events/1", &out))
	require.Equal(t, "Launch", out.Event.Title)
}

func TestNon2xxUsesFallbackWhenBodyHasNoMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client, err := New(srv.URL)
	require.NoError(t, err)

	err = client.Get(context.Background(), "events/1", nil, WithFallback("Could not fetch event."))
	require.Error(t, err)

	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	require.Equal(t, http.StatusNotFound, reqErr.StatusCode)
	require.Equal(t, "Could not fetch event.", reqErr.Error())
	require.True(t, IsNotFound(err))
	require.False(t, IsNetwork(err))
}

func TestNon2xxPrefersServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":"VALIDATION_FAILED","message":"title failed on required"}`))
	}))
	defer srv.Close()

	client, err := New(srv.URL)
	require.NoError(t, err)

	err = client.Post(context.Background(), "events", map[string]string{}, nil, WithFallback("Could not create event."))
	require.EqualError(t, err, "title failed on required")
	require.Equal(t, http.StatusUnprocessableEntity, StatusCode(err))
}

func TestNon2xxWithoutFallbackOrBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	client, err := New(srv.URL)
	require.NoError(t, err)

	err = client.Delete(context.Background(), "events/9", nil)
	require.EqualError(t, err, "request failed with status 502")
}

func TestWriteRequestsSendJSON(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte(`{"event":{"id":"3"}}`))
	}))
	defer srv.Close()

	client, err := New(srv.URL)
	require.NoError(t, err)

	require.NoError(t, client.Put(context.Background(), "events/3", map[string]string{"title": "Renamed"}, nil))
	require.Equal(t, "Renamed", received["title"])
}

func TestEscapedPathIsSentOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/events/a%20b", r.URL.EscapedPath())
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client, err := New(srv.URL + "/api/")
	require.NoError(t, err)
	require.NoError(t, client.Get(context.Background(), "/events/a%20b", nil))
}

func TestQueryParametersAreEncoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "2", r.URL.Query().Get("page"))
		require.Equal(t, "5", r.URL.Query().Get("per_page"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client, err := New(srv.URL)
	require.NoError(t, err)

	var out map[string]any
	err = client.Get(context.Background(), "events", &out, WithQuery(url.Values{"page": {"2"}, "per_page": {"5"}}))
	require.NoError(t, err)
	require.Nil(t, out)
}

func TestConnectionFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	client, err := New(addr)
	require.NoError(t, err)

	err = client.Get(context.Background(), "events", nil)
	require.Error(t, err)
	require.True(t, IsNetwork(err))
	require.Zero(t, StatusCode(err))
}

func TestTimeoutIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client, err := New(srv.URL, WithTimeout(50*time.Millisecond))
	require.NoError(t, err)

	err = client.Get(context.Background(), "events", nil)
	require.True(t, IsNetwork(err))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTokenSourceAddsBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "secret-token"})
	client, err := New(srv.URL, WithTokenSource(ts))
	require.NoError(t, err)

	require.NoError(t, client.Get(context.Background(), "events", nil))
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := New("")
	require.Error(t, err)

	_, err = New("ftp://example.com")
	require.Error(t, err)
}
