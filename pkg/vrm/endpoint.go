package vrm

import (
	"encoding/json"

	"github.com/raterudder/vrmapi/pkg/types"
)

// Endpoint is one of the request shapes the router understands:
// UsersEndpoint, InstallationsEndpoint, WidgetsEndpoint, DynamicESSEndpoint or
// CustomEndpoint.
type Endpoint interface {
	Family() types.Family
	isEndpoint()
}

type UsersEndpoint struct {
	Query  types.UsersQuery
	UserID string
}

type InstallationsEndpoint struct {
	SiteID  string
	Query   types.InstallationsQuery
	Params  types.Params
	Payload json.RawMessage
}

type WidgetsEndpoint struct {
	SiteID   string
	Widget   string
	Instance string
}

type DynamicESSEndpoint struct {
	Options types.DynamicESSOptions
}

// CustomEndpoint bypasses the routing table. BaseURL defaults to the router's
// base URL.
type CustomEndpoint struct {
	BaseURL string
	Query   string
	Method  string
	Payload json.RawMessage
}

func (UsersEndpoint) Family() types.Family         { return types.FamilyUsers }
func (InstallationsEndpoint) Family() types.Family { return types.FamilyInstallations }
func (WidgetsEndpoint) Family() types.Family       { return types.FamilyWidgets }
func (DynamicESSEndpoint) Family() types.Family    { return types.FamilyDynamicESS }
func (CustomEndpoint) Family() types.Family        { return types.FamilyCustom }

func (UsersEndpoint) isEndpoint()         {}
func (InstallationsEndpoint) isEndpoint() {}
func (WidgetsEndpoint) isEndpoint()       {}
func (DynamicESSEndpoint) isEndpoint()    {}
func (CustomEndpoint) isEndpoint()        {}

// EndpointFor maps cfg onto its endpoint. siteID must already be resolved and
// params are only used by the stats endpoint.
func EndpointFor(cfg types.RequestConfig, siteID string, params types.Params) (Endpoint, error) {
	switch cfg.Family {
	case types.FamilyUsers:
		q := cfg.Users
		if q == "" {
			q = types.UsersMe
		}
		if !q.Valid() {
			return nil, &ConfigurationError{Field: "users", Value: string(q), Reason: "unknown users query"}
		}
		return UsersEndpoint{Query: q, UserID: cfg.UserID}, nil
	case types.FamilyInstallations:
		if !cfg.Installations.Valid() {
			return nil, &ConfigurationError{Field: "installations", Value: string(cfg.Installations), Reason: "unknown installations query"}
		}
		if siteID == "" {
			return nil, &ConfigurationError{Field: "siteId", Reason: "site id is required"}
		}
		ep := InstallationsEndpoint{SiteID: siteID, Query: cfg.Installations, Payload: cfg.Payload}
		if cfg.Installations == types.InstallationsStats {
			ep.Params = params
		}
		return ep, nil
	case types.FamilyWidgets:
		if cfg.Widget == "" {
			return nil, &ConfigurationError{Field: "widget", Reason: "widget type is required"}
		}
		if siteID == "" {
			return nil, &ConfigurationError{Field: "siteId", Reason: "site id is required"}
		}
		return WidgetsEndpoint{SiteID: siteID, Widget: cfg.Widget, Instance: cfg.WidgetInstance}, nil
	case types.FamilyDynamicESS:
		opts := cfg.DynamicESS
		if opts.VRMID == "" {
			opts.VRMID = siteID
		}
		return DynamicESSEndpoint{Options: opts}, nil
	case types.FamilyCustom:
		return CustomEndpoint{BaseURL: cfg.BaseURL, Query: cfg.Query, Method: cfg.Method, Payload: cfg.Payload}, nil
	default:
		return nil, &ConfigurationError{Field: "family", Value: string(cfg.Family), Reason: "unknown endpoint family"}
	}
}
