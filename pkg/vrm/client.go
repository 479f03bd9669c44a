package vrm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/vrmapi/pkg/common"
	"github.com/raterudder/vrmapi/pkg/log"
	"github.com/raterudder/vrmapi/pkg/types"
)

// maxResponseSize caps how much of a response body is read.
const maxResponseSize = 16 << 20

// Client sends built requests to VRM and normalizes the outcome into an
// envelope. It never retries.
type Client struct {
	client *http.Client
	router *Router
}

// NewClient returns a client using httpClient for transport.
func NewClient(httpClient *http.Client, router *Router) *Client {
	if router == nil {
		router = NewRouter()
	}
	return &Client{client: httpClient, router: router}
}

// Configured returns a client whose hosts and timeout come from flags.
func Configured() *Client {
	baseURL := lflag.String("vrm-base-url", DefaultBaseURL, "Base URL of the VRM API")
	dynamicESSURL := lflag.String("vrm-dynamic-ess-url", DefaultDynamicESSURL, "URL of the Dynamic ESS API")
	timeout := lflag.Duration("vrm-timeout", time.Minute, "Timeout for VRM API requests")

	c := &Client{router: NewRouter()}

	lflag.Do(func() {
		c.router.BaseURL = strings.TrimSuffix(*baseURL, "/")
		c.router.DynamicESSURL = *dynamicESSURL
		c.client = common.HTTPClient(*timeout)
	})

	return c
}

// Router returns the router used to build requests for this client.
func (c *Client) Router() *Router {
	return c.router
}

// Do performs req. Network failures and non-2xx responses produce an
// envelope with Success false.
func (c *Client) Do(ctx context.Context, req types.Request) types.Envelope {
	env := types.Envelope{
		URL:    req.URL,
		Method: strings.ToLower(req.Method),
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	hreq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		env.Error = fmt.Sprintf("failed to create request: %v", err)
		return env
	}
	for k, vs := range req.Header {
		hreq.Header[k] = append([]string(nil), vs...)
	}

	log.Ctx(ctx).DebugContext(ctx, "vrm request", slog.String("method", req.Method), slog.String("url", req.URL))

	resp, err := c.client.Do(hreq)
	if err != nil {
		env.Error = err.Error()
		return env
	}
	defer resp.Body.Close()

	env.Status = resp.StatusCode
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		env.Error = fmt.Sprintf("failed to read response: %v", err)
		return env
	}
	env.Data = responseData(raw)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		env.Error = fmt.Sprintf("Request failed with status code %d", resp.StatusCode)
		log.Ctx(ctx).DebugContext(ctx, "vrm request failed", slog.Int("status", resp.StatusCode), slog.String("body", string(raw)))
		return env
	}

	env.Success = true
	return env
}

// responseData keeps JSON bodies verbatim and wraps anything else as a JSON
// string so the envelope stays valid JSON.
func responseData(raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	b, err := json.Marshal(string(raw))
	if err != nil {
		return nil
	}
	return b
}
