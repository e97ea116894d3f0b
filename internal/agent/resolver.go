package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/goevery/contentsync/internal/ierr"
)

// Resolver returns the WebSocket URL of the relay.
type Resolver interface {
	Resolve(ctx context.Context) (string, error)
}

type StaticResolver string

func (r StaticResolver) Resolve(ctx context.Context) (string, error) {
	if r == "" {
		return "", ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("relay url is empty"))
	}

	return string(r), nil
}

type serverInfo struct {
	WSPort int `json:"wsPort"`
}

// HTTPResolver asks the relay's server-info endpoint which port the
// WebSocket listens on and builds the URL from the discovery host.
type HTTPResolver struct {
	client       *http.Client
	discoveryURL string
	path         string
}

func NewHTTPResolver(client *http.Client, discoveryURL string, path string) *HTTPResolver {
	if client == nil {
		client = http.DefaultClient
	}

	return &HTTPResolver{
		client,
		discoveryURL,
		path,
	}
}

func (r *HTTPResolver) Resolve(ctx context.Context) (string, error) {
	discoveryURL, err := url.Parse(r.discoveryURL)
	if err != nil {
		return "", ierr.New(ierr.ErrorCodeInvalidArgument, fmt.Errorf("invalid discovery url: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL.String(), nil)
	if err != nil {
		return "", ierr.New(ierr.ErrorCodeInvalidArgument, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", ierr.New(ierr.ErrorCodeUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", ierr.New(ierr.ErrorCodeUnavailable, fmt.Errorf("discovery returned status %d", resp.StatusCode))
	}

	var info serverInfo
	err = json.NewDecoder(resp.Body).Decode(&info)
	if err != nil {
		return "", ierr.New(ierr.ErrorCodeUnavailable, fmt.Errorf("invalid discovery response: %w", err))
	}

	if info.WSPort <= 0 || info.WSPort > 65535 {
		return "", ierr.New(ierr.ErrorCodeUnavailable, fmt.Errorf("invalid wsPort %d", info.WSPort))
	}

	scheme := "ws"
	if discoveryURL.Scheme == "https" {
		scheme = "wss"
	}

	relayURL := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(discoveryURL.Hostname(), strconv.Itoa(info.WSPort)),
		Path:   r.path,
	}

	return relayURL.String(), nil
}
