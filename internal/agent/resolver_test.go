package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/goevery/contentsync/internal/ierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticResolver(t *testing.T) {
	relayURL, err := StaticResolver("ws://localhost:3001/ws").Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:3001/ws", relayURL)

	_, err = StaticResolver("").Resolve(context.Background())
	assert.True(t, ierr.Is(err, ierr.ErrorCodeInvalidArgument))
}

func TestHTTPResolver(t *testing.T) {
	t.Run("builds url from discovery host", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/server-info", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"wsPort":4321,"name":"Dev-Server-4321"}`))
		}))
		defer server.Close()

		resolver := NewHTTPResolver(nil, server.URL+"/api/server-info", "/ws")

		relayURL, err := resolver.Resolve(context.Background())
		require.NoError(t, err)

		u, err := url.Parse(relayURL)
		require.NoError(t, err)
		assert.Equal(t, "ws", u.Scheme)
		assert.Equal(t, "4321", u.Port())
		assert.Equal(t, "127.0.0.1", u.Hostname())
		assert.Equal(t, "/ws", u.Path)
	})

	t.Run("non ok status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		_, err := NewHTTPResolver(server.Client(), server.URL, "/ws").Resolve(context.Background())
		assert.True(t, ierr.Is(err, ierr.ErrorCodeUnavailable))
	})

	t.Run("invalid port", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"wsPort":0}`))
		}))
		defer server.Close()

		_, err := NewHTTPResolver(server.Client(), server.URL, "/ws").Resolve(context.Background())
		assert.True(t, ierr.Is(err, ierr.ErrorCodeUnavailable))
	})

	t.Run("invalid body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>`))
		}))
		defer server.Close()

		_, err := NewHTTPResolver(server.Client(), server.URL, "/ws").Resolve(context.Background())
		assert.True(t, ierr.Is(err, ierr.ErrorCodeUnavailable))
	})

	t.Run("unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		discoveryURL := server.URL
		server.Close()

		_, err := NewHTTPResolver(nil, discoveryURL, "/ws").Resolve(context.Background())
		assert.True(t, ierr.Is(err, ierr.ErrorCodeUnavailable))
	})
}
