package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"pdfchat/internal/models"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	for _, host := range []string{"", "localhost:11434", "http://ollama.internal:11434"} {
		c, err := NewClient(host, nil)
		require.NoError(t, err, host)
		assert.NotNil(t, c)
	}

	_, err := NewClient("http://[::1", nil)
	assert.ErrorIs(t, err, models.ErrInvalidConfig)
}

func TestMapError(t *testing.T) {
	bg := context.Background()
	modelMissing := api.StatusError{StatusCode: http.StatusNotFound, ErrorMessage: "model not found"}

	tests := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{"server error", api.StatusError{StatusCode: http.StatusInternalServerError, ErrorMessage: "boom"}, true},
		{"bad gateway wrapped", fmt.Errorf("call: %w", api.StatusError{StatusCode: http.StatusBadGateway}), true},
		{"client error", modelMissing, false},
		{"timeout", fmt.Errorf("post: %w", context.DeadlineExceeded), true},
		{"transport", &url.Error{Op: "Post", URL: "http://localhost:1", Err: errors.New("connection refused")}, true},
		{"other", errors.New("decode failure"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(bg, tt.err)
			assert.Equal(t, tt.unavailable, errors.Is(got, models.ErrServiceUnavailable))
			assert.ErrorIs(t, got, tt.err)
		})
	}

	assert.NoError(t, MapError(bg, nil))
}

func TestMapError_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := MapError(ctx, &url.Error{Op: "Post", URL: "http://x", Err: context.Canceled})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, models.ErrServiceUnavailable)
}
