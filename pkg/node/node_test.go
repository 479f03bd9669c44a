package node

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/raterudder/vrmapi/pkg/log"
	"github.com/raterudder/vrmapi/pkg/storage"
	"github.com/raterudder/vrmapi/pkg/storage/storagemock"
	"github.com/raterudder/vrmapi/pkg/types"
	"github.com/raterudder/vrmapi/pkg/vrm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

const testToken = "secret"

type testAPI struct {
	*httptest.Server
	calls atomic.Int32
}

func newTestAPI(t *testing.T) *testAPI {
	api := &testAPI{}
	api.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.calls.Add(1)
		assert.Equal(t, "Token "+testToken, r.Header.Get("X-Authorization"))
		switch r.URL.Path {
		case "/v2/users/me":
			json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"user":    map[string]any{"id": 42, "name": "Jane"},
			})
		case "/v2/installations/777/basic", "/v2/installations/888/basic":
			json.NewEncoder(w).Encode(map[string]any{"success": true, "records": []any{}})
		case "/v2/installations/777/stats":
			if r.URL.Query().Get("type") == "dynamic_ess" {
				json.NewEncoder(w).Encode(map[string]any{
					"success": true,
					"records": map[string]any{
						"deGb": [][]float64{{1760745600000, 0.30}, {1760746500000, 0.28}},
						"deGs": [][]float64{{1760745600000, 0.10}, {1760746500000, 0.09}},
					},
				})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"totals":  map[string]any{"bs": 12.34},
			})
		case "/v2/installations/999/stats":
			w.Write([]byte(`{"success":true,"records":{"deGb":[[1760745600000]]}}`))
		case "/v2/installations/500/basic":
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"success":false}`))
		case "/v2/installations/1/tags":
			assert.Equal(t, http.MethodGet, r.Method)
			json.NewEncoder(w).Encode(map[string]any{"success": true, "tags": []string{"a"}})
		default:
			http.Error(w, "not found: "+r.URL.Path, http.StatusNotFound)
		}
	}))
	t.Cleanup(api.Close)
	return api
}

func (api *testAPI) client() *vrm.Client {
	return vrm.NewClient(api.Server.Client(), &vrm.Router{
		BaseURL:       api.URL + "/v2",
		DynamicESSURL: api.URL + "/dess",
		UserAgent:     "vrmapi/test",
	})
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func newTestNode(api *testAPI, cfg Config, store storage.Store, metrics *Metrics) (*Node, *fakeClock) {
	if cfg.Name == "" {
		cfg.Name = "test"
	}
	n := New(cfg, api.client(), store, metrics)
	clock := &fakeClock{t: time.Date(2023, 10, 15, 12, 0, 0, 0, time.UTC)}
	n.now = clock.now
	return n, clock
}

func TestHandleUsers(t *testing.T) {
	api := newTestAPI(t)
	n, _ := newTestNode(api, Config{Request: types.RequestConfig{
		Family:   types.FamilyUsers,
		APIToken: testToken,
	}}, nil, nil)

	res, err := n.Handle(context.Background(), Message{})
	require.NoError(t, err)
	assert.Equal(t, "users me", res.Topic)
	assert.Equal(t, "Jane (ID: 42)", res.Status.Text)
	assert.Equal(t, types.ColorGreen, res.Status.Color)
	require.NotNil(t, res.Envelope)
	assert.True(t, res.Envelope.Success)
	require.NotNil(t, res.Outputs[0])
	assert.Equal(t, "users me", res.Outputs[0].Topic)
	assert.Equal(t, api.URL+"/v2/users/me", res.Outputs[0].URL)
	assert.JSONEq(t, `{"success":true,"user":{"id":42,"name":"Jane"}}`, string(res.Outputs[0].Payload))
	assert.Nil(t, res.Outputs[1])

	last, ok := n.Last()
	require.True(t, ok)
	assert.Equal(t, res.Status, last.Status)
}

func TestHandleToken(t *testing.T) {
	api := newTestAPI(t)
	cfg := Config{Request: types.RequestConfig{Family: types.FamilyUsers}}

	t.Run("Missing", func(t *testing.T) {
		n, _ := newTestNode(api, cfg, nil, nil)
		res, err := n.Handle(context.Background(), Message{})
		require.Error(t, err)
		assert.ErrorIs(t, err, vrm.ErrMissingToken)
		var cerr *vrm.ConfigurationError
		assert.ErrorAs(t, err, &cerr)
		assert.Equal(t, "No API token configured", res.Status.Text)
		assert.Equal(t, types.ColorRed, res.Status.Color)
	})

	t.Run("FlowContext", func(t *testing.T) {
		store := storage.NewMemory()
		require.NoError(t, store.Set(context.Background(), storage.ScopeFlow, TokenContextKey, testToken))
		n, _ := newTestNode(api, cfg, store, nil)
		res, err := n.Handle(context.Background(), Message{})
		require.NoError(t, err)
		assert.Equal(t, "Jane (ID: 42)", res.Status.Text)
	})

	t.Run("StoreError", func(t *testing.T) {
		store := new(storagemock.MockStore)
		store.On("Get", mock.Anything, storage.ScopeFlow, TokenContextKey).Return(nil, false, errors.New("unavailable"))
		n, _ := newTestNode(api, cfg, store, nil)
		res, err := n.Handle(context.Background(), Message{})
		require.Error(t, err)
		assert.Equal(t, "Unexpected error", res.Status.Text)
		store.AssertExpectations(t)
	})
}

func TestHandleRateLimit(t *testing.T) {
	api := newTestAPI(t)
	n, clock := newTestNode(api, Config{Request: types.RequestConfig{
		Family:   types.FamilyUsers,
		APIToken: testToken,
	}}, nil, nil)
	ctx := context.Background()

	_, err := n.Handle(ctx, Message{})
	require.NoError(t, err)

	clock.t = clock.t.Add(4 * time.Second)
	res, err := n.Handle(ctx, Message{})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, types.ColorYellow, res.Status.Color)
	assert.EqualValues(t, 1, api.calls.Load())

	last, ok := n.Last()
	require.True(t, ok)
	assert.Equal(t, "Jane (ID: 42)", last.Status.Text)

	clock.t = clock.t.Add(time.Second)
	_, err = n.Handle(ctx, Message{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, api.calls.Load())
}

func TestHandleFailureDoesNotRateLimit(t *testing.T) {
	api := newTestAPI(t)
	n, _ := newTestNode(api, Config{Request: types.RequestConfig{
		Family:        types.FamilyInstallations,
		Installations: types.InstallationsBasic,
		SiteID:        "500",
		APIToken:      testToken,
	}}, nil, nil)
	ctx := context.Background()

	res, err := n.Handle(ctx, Message{})
	require.NoError(t, err)
	assert.Equal(t, "Request failed with status code 500", res.Status.Text)
	assert.Equal(t, types.ColorRed, res.Status.Color)
	assert.Nil(t, res.Outputs[0])
	assert.Nil(t, res.Outputs[1])

	_, err = n.Handle(ctx, Message{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, api.calls.Load())
}

func TestHandleSiteID(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()
	basic := func(site string) Config {
		return Config{Name: "site", Request: types.RequestConfig{
			Family:        types.FamilyInstallations,
			Installations: types.InstallationsBasic,
			SiteID:        site,
			APIToken:      testToken,
		}}
	}

	t.Run("Override", func(t *testing.T) {
		n, _ := newTestNode(api, basic("777"), nil, nil)
		res, err := n.Handle(ctx, Message{SiteID: "888"})
		require.NoError(t, err)
		assert.Equal(t, "installations basic", res.Topic)
		assert.Equal(t, api.URL+"/v2/installations/888/basic", res.Envelope.URL)
	})

	t.Run("GlobalReference", func(t *testing.T) {
		store := storage.NewMemory()
		require.NoError(t, store.Set(ctx, storage.ScopeGlobal, "victron.site", json.Number("777")))
		n, _ := newTestNode(api, basic("{{global.victron.site}}"), store, nil)
		res, err := n.Handle(ctx, Message{SiteID: "888"})
		require.NoError(t, err)
		assert.Equal(t, api.URL+"/v2/installations/777/basic", res.Envelope.URL)
		assert.Equal(t, "Ok", res.Status.Text)
	})

	t.Run("NodeReference", func(t *testing.T) {
		store := storage.NewMemory()
		require.NoError(t, store.Set(ctx, storage.ScopeNode, NodeKey("site", "id"), "777"))
		n, _ := newTestNode(api, basic("{{node.id}}"), store, nil)
		res, err := n.Handle(ctx, Message{})
		require.NoError(t, err)
		assert.Equal(t, api.URL+"/v2/installations/777/basic", res.Envelope.URL)
	})

	t.Run("MissingReference", func(t *testing.T) {
		n, _ := newTestNode(api, basic("{{flow.site}}"), storage.NewMemory(), nil)
		res, err := n.Handle(ctx, Message{})
		var lerr *vrm.ContextLookupError
		require.ErrorAs(t, err, &lerr)
		assert.Equal(t, "flow", lerr.Ref.Scope)
		assert.Equal(t, "Unable to retrieve {{flow.site}} from context", res.Status.Text)
		assert.Equal(t, types.ColorRed, res.Status.Color)
		assert.Nil(t, res.Envelope)
	})

	t.Run("Missing", func(t *testing.T) {
		n, _ := newTestNode(api, basic(""), nil, nil)
		res, err := n.Handle(ctx, Message{})
		var cerr *vrm.ConfigurationError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, types.ColorRed, res.Status.Color)
	})
}

func TestHandleCustom(t *testing.T) {
	api := newTestAPI(t)
	n, _ := newTestNode(api, Config{Request: types.RequestConfig{
		Family:   types.FamilyUsers,
		APIToken: testToken,
	}}, nil, nil)

	res, err := n.Handle(context.Background(), Message{
		Query:  "installations/1/tags",
		Method: "get",
		URL:    api.URL + "/v2",
	})
	require.NoError(t, err)
	assert.Equal(t, "custom", res.Topic)
	assert.Equal(t, api.URL+"/v2/installations/1/tags", res.Envelope.URL)
	assert.Equal(t, "Ok", res.Status.Text)

	t.Run("UnsupportedMethodFallsBack", func(t *testing.T) {
		n, _ := newTestNode(api, Config{Request: types.RequestConfig{
			Family:   types.FamilyUsers,
			APIToken: testToken,
		}}, nil, nil)
		res, err := n.Handle(context.Background(), Message{Query: "installations/1/tags", Method: "DELETE"})
		require.NoError(t, err)
		assert.Equal(t, "users me", res.Topic)
	})
}

func TestHandleUnknownFamily(t *testing.T) {
	api := newTestAPI(t)
	n, _ := newTestNode(api, Config{Request: types.RequestConfig{
		Family:   "weather",
		APIToken: testToken,
	}}, nil, nil)

	res, err := n.Handle(context.Background(), Message{})
	var cerr *vrm.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "Unknown API type", res.Status.Text)
	assert.Zero(t, api.calls.Load())
}

func TestHandleStoreInGlobalContext(t *testing.T) {
	api := newTestAPI(t)
	store := storage.NewMemory()
	n, _ := newTestNode(api, Config{
		StoreInGlobalContext: true,
		Request: types.RequestConfig{
			Family:        types.FamilyInstallations,
			Installations: types.InstallationsBasic,
			SiteID:        "777",
			APIToken:      testToken,
		},
	}, store, nil)

	_, err := n.Handle(context.Background(), Message{})
	require.NoError(t, err)

	v, found, err := store.Get(context.Background(), storage.ScopeGlobal, "installations.basic")
	require.NoError(t, err)
	require.True(t, found)
	raw, ok := v.(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, `{"success":true,"records":[]}`, string(raw))
}

func TestHandlePriceSchedule(t *testing.T) {
	api := newTestAPI(t)
	cfg := func(site string) Config {
		return Config{
			TransformPriceSchedule: true,
			Request: types.RequestConfig{
				Family:        types.FamilyInstallations,
				Installations: types.InstallationsStats,
				Attribute:     "dynamic_ess",
				SiteID:        site,
				APIToken:      testToken,
			},
		}
	}

	t.Run("Transformed", func(t *testing.T) {
		n, _ := newTestNode(api, cfg("777"), nil, nil)
		res, err := n.Handle(context.Background(), Message{})
		require.NoError(t, err)
		assert.Equal(t, "2 price intervals", res.Status.Text)
		assert.Equal(t, types.ColorGreen, res.Status.Color)
		require.NotNil(t, res.Outputs[0])
		require.NotNil(t, res.Outputs[1])
		assert.Equal(t, "price-schedule", res.Outputs[1].Topic)
		require.NotNil(t, res.Outputs[1].Metadata)
		assert.Equal(t, 2, res.Outputs[1].Metadata.Count)

		var slots []vrm.PriceSlot
		require.NoError(t, json.Unmarshal(res.Outputs[1].Payload, &slots))
		require.Len(t, slots, 2)
		assert.Equal(t, int64(1760745600000), slots[0].Timestamp)
		require.NotNil(t, slots[0].Spread)
		assert.InDelta(t, 0.20, *slots[0].Spread, 1e-9)
	})

	t.Run("TransformError", func(t *testing.T) {
		n, _ := newTestNode(api, cfg("999"), nil, nil)
		res, err := n.Handle(context.Background(), Message{})
		require.NoError(t, err)
		assert.Equal(t, "transform error", res.Status.Text)
		assert.Equal(t, types.ColorYellow, res.Status.Color)
		assert.NotNil(t, res.Outputs[0])
		assert.Nil(t, res.Outputs[1])
	})

	t.Run("DisabledForOtherAttributes", func(t *testing.T) {
		c := cfg("777")
		c.Request.Attribute = "bs"
		n, _ := newTestNode(api, c, nil, nil)
		res, err := n.Handle(context.Background(), Message{})
		require.NoError(t, err)
		assert.Nil(t, res.Outputs[1])
		assert.Equal(t, "bs: 12.3", res.Status.Text)
	})
}

func TestHandleMetrics(t *testing.T) {
	api := newTestAPI(t)
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	n, clock := newTestNode(api, Config{Name: "m", Request: types.RequestConfig{
		Family:   types.FamilyUsers,
		APIToken: testToken,
	}}, nil, metrics)
	ctx := context.Background()

	_, err := n.Handle(ctx, Message{})
	require.NoError(t, err)
	_, err = n.Handle(ctx, Message{})
	require.ErrorIs(t, err, ErrRateLimited)
	clock.t = clock.t.Add(time.Minute)
	_, err = n.Handle(ctx, Message{})
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.requests.WithLabelValues("m", "users", outcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requests.WithLabelValues("m", "users", outcomeRateLimited)))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.latency))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.count("n", types.FamilyUsers, outcomeSuccess)
		m.observe("n", types.FamilyUsers, time.Second)
	})
}
