package vrm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/raterudder/vrmapi/pkg/common"
	"github.com/raterudder/vrmapi/pkg/types"
)

const (
	DefaultBaseURL       = "https://vrmapi.victronenergy.com/v2"
	DefaultDynamicESSURL = "https://vrm-dynamic-ess-api.victronenergy.com"

	// dynamicESSUserAgent is the client version the Dynamic ESS API expects.
	dynamicESSUserAgent = "dynamic-ess/0.1.20"
)

// Router turns endpoints into concrete requests. It holds no per-request
// state and is safe for concurrent use.
type Router struct {
	BaseURL       string
	DynamicESSURL string
	UserAgent     string
}

// NewRouter returns a router pointed at the public VRM hosts.
func NewRouter() *Router {
	return &Router{
		BaseURL:       DefaultBaseURL,
		DynamicESSURL: DefaultDynamicESSURL,
		UserAgent:     common.UserAgent(),
	}
}

// BuildRequest builds the request for ep authenticated with token.
func (r *Router) BuildRequest(ep Endpoint, token string) (types.Request, error) {
	if token == "" {
		return types.Request{}, &ConfigurationError{Field: "token", Err: ErrMissingToken}
	}

	var (
		req types.Request
		err error
	)
	switch e := ep.(type) {
	case UsersEndpoint:
		req, err = r.usersRequest(e)
	case InstallationsEndpoint:
		req, err = r.installationsRequest(e)
	case WidgetsEndpoint:
		req, err = r.widgetsRequest(e)
	case DynamicESSEndpoint:
		req, err = r.dynamicESSRequest(e)
	case CustomEndpoint:
		req, err = r.customRequest(e)
	default:
		return types.Request{}, &ConfigurationError{Reason: fmt.Sprintf("unsupported endpoint %T", ep)}
	}
	if err != nil {
		return types.Request{}, err
	}

	h := http.Header{}
	h.Set("X-Authorization", "Token "+token)
	h.Set("Accept", "application/json")
	h.Set("User-Agent", r.UserAgent)
	if _, ok := ep.(DynamicESSEndpoint); ok {
		h.Set("User-Agent", dynamicESSUserAgent)
	}
	if len(req.Body) > 0 {
		h.Set("Content-Type", "application/json")
	}
	req.Header = h
	return req, nil
}

func (r *Router) usersRequest(e UsersEndpoint) (types.Request, error) {
	var (
		u   string
		err error
	)
	switch e.Query {
	case types.UsersMe:
		u, err = url.JoinPath(r.BaseURL, "users", "me")
	case types.UsersInstallations:
		id := e.UserID
		if id == "" {
			id = "me"
		}
		u, err = url.JoinPath(r.BaseURL, "users", id, "installations")
	default:
		return types.Request{}, &ConfigurationError{Field: "users", Value: string(e.Query), Reason: "unknown users query"}
	}
	if err != nil {
		return types.Request{}, fmt.Errorf("failed to build users url: %w", err)
	}
	return types.Request{Method: http.MethodGet, URL: u}, nil
}

func (r *Router) installationsRequest(e InstallationsEndpoint) (types.Request, error) {
	if !e.Query.Valid() {
		return types.Request{}, &ConfigurationError{Field: "installations", Value: string(e.Query), Reason: "unknown installations query"}
	}

	method := http.MethodGet
	resource := string(e.Query)
	var query string
	switch e.Query {
	case types.InstallationsPostAlarms:
		method, resource = http.MethodPost, string(types.InstallationsAlarms)
	case types.InstallationsPostDynamicESSSettings:
		method, resource = http.MethodPost, string(types.InstallationsDynamicESSSettings)
	case types.InstallationsPatchDynamicESSSettings:
		method, resource = http.MethodPatch, string(types.InstallationsDynamicESSSettings)
	case types.InstallationsFetchDynamicESSSchedules:
		resource, query = "schedule-dynamic-ess", "async=0"
	case types.InstallationsStats:
		query = e.Params.Encode()
	}

	u, err := url.JoinPath(r.BaseURL, "installations", e.SiteID, resource)
	if err != nil {
		return types.Request{}, fmt.Errorf("failed to build installations url: %w", err)
	}
	if query != "" {
		u += "?" + query
	}

	req := types.Request{Method: method, URL: u}
	if method != http.MethodGet {
		req.Body = e.Payload
	}
	return req, nil
}

func (r *Router) widgetsRequest(e WidgetsEndpoint) (types.Request, error) {
	u, err := url.JoinPath(r.BaseURL, "installations", e.SiteID, "widgets", e.Widget)
	if err != nil {
		return types.Request{}, fmt.Errorf("failed to build widgets url: %w", err)
	}
	if e.Instance != "" {
		u += "?" + url.Values{"instance": {e.Instance}}.Encode()
	}
	return types.Request{Method: http.MethodGet, URL: u}, nil
}

// dynamicESSPayload mirrors what the Dynamic ESS API expects: every value is
// sent as a string.
type dynamicESSPayload struct {
	VRMID            string `json:"vrm_id"`
	BMax             string `json:"b_max"`
	TBMax            string `json:"tb_max"`
	FBMax            string `json:"fb_max"`
	TGMax            string `json:"tg_max"`
	FGMax            string `json:"fg_max"`
	BCycleCost       string `json:"b_cycle_cost"`
	BuyPriceFormula  string `json:"buy_price_formula"`
	SellPriceFormula string `json:"sell_price_formula"`
	GreenModeOn      string `json:"green_mode_on"`
	FeedInPossible   string `json:"feed_in_possible"`
	FeedInControlOn  string `json:"feed_in_control_on"`
	Country          string `json:"country"`
	BGoalHour        string `json:"b_goal_hour"`
	BGoalSOC         string `json:"b_goal_SOC"`
}

func (r *Router) dynamicESSRequest(e DynamicESSEndpoint) (types.Request, error) {
	o := e.Options
	body, err := json.Marshal(dynamicESSPayload{
		VRMID:            o.VRMID,
		BMax:             o.BMax,
		TBMax:            o.TBMax,
		FBMax:            o.FBMax,
		TGMax:            o.TGMax,
		FGMax:            o.FGMax,
		BCycleCost:       o.BCycleCost,
		BuyPriceFormula:  o.BuyPriceFormula,
		SellPriceFormula: o.SellPriceFormula,
		GreenModeOn:      strconv.FormatBool(o.GreenModeOn),
		FeedInPossible:   strconv.FormatBool(o.FeedInPossible),
		FeedInControlOn:  strconv.FormatBool(o.FeedInControlOn),
		Country:          strings.ToUpper(o.Country),
		BGoalHour:        o.BGoalHour,
		BGoalSOC:         o.BGoalSOC,
	})
	if err != nil {
		return types.Request{}, fmt.Errorf("failed to marshal dynamic ess payload: %w", err)
	}
	return types.Request{Method: http.MethodPost, URL: r.DynamicESSURL, Body: body}, nil
}

func (r *Router) customRequest(e CustomEndpoint) (types.Request, error) {
	method := strings.ToUpper(e.Method)
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPatch:
	default:
		return types.Request{}, &ConfigurationError{Field: "method", Value: e.Method, Reason: "only GET, POST and PATCH are supported"}
	}
	base := e.BaseURL
	if base == "" {
		base = r.BaseURL
	}
	req := types.Request{Method: method, URL: base + "/" + e.Query}
	if method != http.MethodGet {
		req.Body = e.Payload
	}
	return req, nil
}
