// Package node runs configured VRM requests: it applies the success rate
// limit, resolves site references, dispatches the request and turns the
// response into outputs and a status line.
package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/raterudder/vrmapi/pkg/log"
	"github.com/raterudder/vrmapi/pkg/stats"
	"github.com/raterudder/vrmapi/pkg/storage"
	"github.com/raterudder/vrmapi/pkg/types"
	"github.com/raterudder/vrmapi/pkg/vrm"
)

// DefaultMinInterval is the minimum time between two successful requests of
// the same node.
const DefaultMinInterval = 5 * time.Second

// TokenContextKey is the flow context key consulted when a node has no token
// configured.
const TokenContextKey = "vrm_api.credentials.token"

const priceScheduleTopic = "price-schedule"

// ErrRateLimited is returned when a message arrives too soon after the last
// successful request.
var ErrRateLimited = errors.New("rate limited")

var customMethodRe = regexp.MustCompile(`(?i)^(GET|POST|PATCH)$`)

// Config is the static configuration of a node.
type Config struct {
	Name    string
	Request types.RequestConfig

	StoreInGlobalContext   bool
	TransformPriceSchedule bool
	Verbose                bool
	MinInterval            time.Duration
}

// Message is an input to a node. Every field is optional; a Query together
// with a GET, POST or PATCH Method turns the message into a custom call.
type Message struct {
	Topic   string          `json:"topic,omitempty"`
	SiteID  string          `json:"siteId,omitempty"`
	URL     string          `json:"url,omitempty"`
	Query   string          `json:"query,omitempty"`
	Method  string          `json:"method,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Output is one message emitted by a node.
type Output struct {
	Topic    string                     `json:"topic"`
	URL      string                     `json:"url,omitempty"`
	Payload  json.RawMessage            `json:"payload"`
	Metadata *vrm.PriceScheduleMetadata `json:"metadata,omitempty"`
}

// Result is the outcome of handling one message. Outputs[0] carries the raw
// response and Outputs[1] the price schedule when enabled.
type Result struct {
	Topic    string          `json:"topic,omitempty"`
	Status   types.Status    `json:"status"`
	Envelope *types.Envelope `json:"envelope,omitempty"`
	Outputs  [2]*Output      `json:"outputs"`
	Time     time.Time       `json:"time"`
}

// Transport builds and sends VRM requests.
type Transport interface {
	Router() *vrm.Router
	Do(ctx context.Context, req types.Request) types.Envelope
}

// Node handles messages for one configuration. It is safe for concurrent use.
type Node struct {
	cfg     Config
	client  Transport
	store   storage.Store
	metrics *Metrics
	now     func() time.Time

	mu          sync.Mutex
	lastSuccess time.Time
	last        *Result
}

// New returns a node. store and metrics may be nil.
func New(cfg Config, client Transport, store storage.Store, metrics *Metrics) *Node {
	if cfg.MinInterval == 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	return &Node{
		cfg:     cfg,
		client:  client,
		store:   store,
		metrics: metrics,
		now:     time.Now,
	}
}

// Name returns the configured node name.
func (n *Node) Name() string {
	return n.cfg.Name
}

// Last returns the most recent result, if any.
func (n *Node) Last() (Result, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.last == nil {
		return Result{}, false
	}
	return *n.last, true
}

// Handle processes msg. Configuration and context lookup problems are
// returned as errors alongside a red status; transport failures are reported
// through the result's envelope.
func (n *Node) Handle(ctx context.Context, msg Message) (Result, error) {
	ctx = log.WithRequestID(ctx)
	ctx = log.With(ctx, log.Ctx(ctx).With(slog.String("node", n.cfg.Name)))

	now := n.now()
	res, err := n.handle(ctx, msg, now)
	res.Time = now

	if !errors.Is(err, ErrRateLimited) {
		n.mu.Lock()
		n.last = &res
		n.mu.Unlock()
	}
	return res, err
}

func (n *Node) handle(ctx context.Context, msg Message, now time.Time) (Result, error) {
	family := n.cfg.Request.Family

	if !n.allowed(now) {
		n.metrics.count(n.cfg.Name, family, outcomeRateLimited)
		return Result{Status: status("Limit queries quickly", types.ColorYellow)}, ErrRateLimited
	}

	token, err := n.token(ctx)
	if err != nil {
		n.metrics.count(n.cfg.Name, family, outcomeError)
		log.Ctx(ctx).ErrorContext(ctx, "failed to read token from context", slog.Any("error", err))
		return Result{Status: status("Unexpected error", types.ColorRed)}, err
	}
	if token == "" {
		n.metrics.count(n.cfg.Name, family, outcomeError)
		return Result{Status: status("No API token configured", types.ColorRed)}, &vrm.ConfigurationError{Field: "token", Err: vrm.ErrMissingToken}
	}

	cfg := n.cfg.Request
	cfg.APIToken = token
	var (
		topic  string
		siteID string
		params types.Params
	)

	if msg.Query != "" && customMethodRe.MatchString(msg.Method) {
		cfg.Family = types.FamilyCustom
		cfg.BaseURL = msg.URL
		cfg.Query = msg.Query
		cfg.Method = msg.Method
		cfg.Payload = msg.Payload
		topic = msg.Topic
		if topic == "" {
			topic = "custom"
		}
	} else {
		switch cfg.Family {
		case types.FamilyUsers:
			if cfg.Users == "" {
				cfg.Users = types.UsersMe
			}
			topic = "users " + string(cfg.Users)
		case types.FamilyInstallations, types.FamilyWidgets, types.FamilyDynamicESS:
			siteID, err = vrm.ResolveSiteID(ctx, cfg.SiteID, msg.SiteID, n.resolver())
			if err != nil {
				n.metrics.count(n.cfg.Name, cfg.Family, outcomeError)
				var lerr *vrm.ContextLookupError
				if errors.As(err, &lerr) {
					return Result{Status: status(fmt.Sprintf("Unable to retrieve %s from context", cfg.SiteID), types.ColorRed)}, err
				}
				return Result{Status: status("Unexpected error", types.ColorRed)}, err
			}
			switch cfg.Family {
			case types.FamilyInstallations:
				topic = "installations " + string(cfg.Installations)
				if len(msg.Payload) > 0 {
					cfg.Payload = msg.Payload
				}
				if cfg.Installations == types.InstallationsStats {
					params = stats.Parameters(cfg, now)
				}
			case types.FamilyWidgets:
				topic = "widgets " + cfg.Widget
			default:
				topic = string(types.FamilyDynamicESS)
			}
		default:
			n.metrics.count(n.cfg.Name, cfg.Family, outcomeError)
			return Result{Status: status("Unknown API type", types.ColorRed)}, &vrm.ConfigurationError{Field: "family", Value: string(cfg.Family), Reason: "unknown endpoint family"}
		}
	}

	ep, err := vrm.EndpointFor(cfg, siteID, params)
	if err == nil {
		var req types.Request
		req, err = n.client.Router().BuildRequest(ep, token)
		if err == nil {
			return n.send(ctx, cfg, ep, req, topic)
		}
	}
	n.metrics.count(n.cfg.Name, cfg.Family, outcomeError)
	return Result{Topic: topic, Status: status(err.Error(), types.ColorRed)}, err
}

func (n *Node) send(ctx context.Context, cfg types.RequestConfig, ep vrm.Endpoint, req types.Request, topic string) (Result, error) {
	start := time.Now()
	env := n.client.Do(ctx, req)
	n.metrics.observe(n.cfg.Name, ep.Family(), time.Since(start))

	if n.cfg.Verbose {
		log.Ctx(ctx).InfoContext(ctx, "vrm response",
			slog.String("url", env.URL),
			slog.String("method", env.Method),
			slog.Int("status", env.Status),
		)
	}

	res := Result{Topic: topic, Envelope: &env}
	if !env.Success {
		n.metrics.count(n.cfg.Name, ep.Family(), outcomeFailure)
		log.Ctx(ctx).WarnContext(ctx, "vrm request failed", slog.String("url", env.URL), slog.Int("status", env.Status), slog.String("error", env.Error))
		res.Status = status(env.Error, types.ColorRed)
		return res, nil
	}
	n.metrics.count(n.cfg.Name, ep.Family(), outcomeSuccess)

	res.Outputs[0] = &Output{Topic: topic, URL: env.URL, Payload: env.Data}

	if n.cfg.StoreInGlobalContext && n.store != nil {
		key := strings.ReplaceAll(topic, " ", ".")
		if err := n.store.Set(ctx, storage.ScopeGlobal, key, env.Data); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to store response in global context", slog.String("key", key), slog.Any("error", err))
		}
	}

	if n.transformPriceSchedule(cfg) {
		sched, err := vrm.TransformPriceSchedule(env.Data)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to transform price schedule", slog.Any("error", err))
			res.Status = status("transform error", types.ColorYellow)
		} else {
			payload, err := json.Marshal(sched.Slots)
			if err != nil {
				return res, fmt.Errorf("failed to marshal price schedule: %w", err)
			}
			res.Outputs[1] = &Output{Topic: priceScheduleTopic, Payload: payload, Metadata: &sched.Metadata}
			res.Status = status(fmt.Sprintf("%d price intervals", sched.Metadata.Count), types.ColorGreen)
		}
	} else {
		res.Status = vrm.Interpret(ep, env.Data)
	}

	n.mu.Lock()
	n.lastSuccess = n.now()
	n.mu.Unlock()
	return res, nil
}

func (n *Node) transformPriceSchedule(cfg types.RequestConfig) bool {
	return n.cfg.TransformPriceSchedule &&
		cfg.Family == types.FamilyInstallations &&
		cfg.Installations == types.InstallationsStats &&
		cfg.Attribute == stats.AttributeDynamicESS
}

func (n *Node) allowed(now time.Time) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastSuccess.IsZero() || now.Sub(n.lastSuccess) >= n.cfg.MinInterval
}

func (n *Node) token(ctx context.Context) (string, error) {
	if n.cfg.Request.APIToken != "" || n.store == nil {
		return n.cfg.Request.APIToken, nil
	}
	v, found, err := n.store.Get(ctx, storage.ScopeFlow, TokenContextKey)
	if err != nil || !found || v == nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

func (n *Node) resolver() vrm.ContextResolver {
	if n.store == nil {
		return nil
	}
	return nodeResolver{node: n.cfg.Name, store: n.store}
}

// NodeKey is the key a node-scoped value is stored under.
func NodeKey(node, key string) string {
	return node + "/" + key
}

// nodeResolver namespaces node-scoped lookups by node name.
type nodeResolver struct {
	node  string
	store storage.Store
}

func (r nodeResolver) Get(ctx context.Context, scope, key string) (any, bool, error) {
	if scope == storage.ScopeNode {
		key = NodeKey(r.node, key)
	}
	return r.store.Get(ctx, scope, key)
}

func status(text string, color types.Color) types.Status {
	return types.Status{Text: text, Color: color}
}
