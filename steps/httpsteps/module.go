// Package httpsteps provides the HttpSteps object: simple HTTP fetch
// step bodies.
package httpsteps

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vk/metalus/internal/ctxlog"
	"github.com/vk/metalus/internal/pipeline"
	"github.com/vk/metalus/internal/steps"
	"github.com/vk/metalus/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// Module implements the steps.Module interface for this package.
type Module struct{}

// httpClient is shared across step executions to reuse TCP connections.
var httpClient = &http.Client{Timeout: 30 * time.Second}

// GetInput describes an HTTP GET request.
type GetInput struct {
	URL     string            `cty:"url"`
	Headers map[string]string `cty:"headers"`
}

// Get is the body for 'HttpSteps.get'. The body text is the primary
// return; the status code lands in the named return "status". Response
// headers are not returned.
func Get(ctx context.Context, pctx *pipeline.Context, in *GetInput) (any, error) {
	logger := ctxlog.FromContext(ctx).With("url", in.URL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, in.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for '%s': %w", in.URL, err)
	}
	for k, v := range in.Headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to '%s' failed: %w", in.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from '%s': %w", in.URL, err)
	}
	logger.Debug("HTTP GET finished.", "status", resp.StatusCode, "bytes", len(body))

	return &value.Response{
		Primary: cty.StringVal(string(body)),
		Named: map[string]cty.Value{
			"status": cty.NumberIntVal(int64(resp.StatusCode)),
		},
	}, nil
}

// Register registers the step bodies with the engine.
func (m *Module) Register(r *steps.Registry) {
	r.RegisterStep("HttpSteps", "get", &steps.Overload{
		NewInput: func() any { return new(GetInput) },
		Fn:       Get,
	})
}
