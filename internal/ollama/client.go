// Package ollama holds the pieces shared by the embedding and generation
// clients: host resolution and error classification.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"pdfchat/internal/models"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"
)

// NewClient creates an API client for host, falling back to OLLAMA_HOST and
// then the local default when host is empty
func NewClient(host string, httpClient *http.Client) (*api.Client, error) {
	hostURL := envconfig.Host()
	if host != "" {
		if !strings.Contains(host, "://") {
			host = "http://" + host
		}
		u, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("%w: ollama host %q: %w", models.ErrInvalidConfig, host, err)
		}
		hostURL = u
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return api.NewClient(hostURL, httpClient), nil
}

// MapError classifies an API error. Transport failures, timeouts of the call
// and server side errors become ErrServiceUnavailable. Cancellation of the
// parent context is returned as is.
func MapError(parent context.Context, err error) error {
	if err == nil {
		return nil
	}
	if parent.Err() != nil {
		return parent.Err()
	}

	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %w", models.ErrServiceUnavailable, err)
		}
		return err
	}

	var urlErr *url.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %w", models.ErrServiceUnavailable, err)
	}
	return err
}
