package types

import "encoding/json"

// Family is the endpoint family a request is routed through.
type Family string

const (
	FamilyUsers         Family = "users"
	FamilyInstallations Family = "installations"
	FamilyWidgets       Family = "widgets"
	// FamilyDynamicESS is the standalone Dynamic ESS optimisation API which
	// lives on its own host.
	FamilyDynamicESS Family = "dynamic-ess"
	FamilyCustom     Family = "custom"
)

// InstallationsQuery selects the sub-resource of an installation.
type InstallationsQuery string

const (
	InstallationsBasic                    InstallationsQuery = "basic"
	InstallationsStats                    InstallationsQuery = "stats"
	InstallationsOverallStats             InstallationsQuery = "overallstats"
	InstallationsAlarms                   InstallationsQuery = "alarms"
	InstallationsPostAlarms               InstallationsQuery = "post-alarms"
	InstallationsDynamicESSSettings       InstallationsQuery = "dynamic-ess-settings"
	InstallationsPostDynamicESSSettings   InstallationsQuery = "post-dynamic-ess-settings"
	InstallationsPatchDynamicESSSettings  InstallationsQuery = "patch-dynamic-ess-settings"
	InstallationsFetchDynamicESSSchedules InstallationsQuery = "fetch-dynamic-ess-schedules"
	InstallationsGPSDownload              InstallationsQuery = "gps-download"
	InstallationsDiagnostics              InstallationsQuery = "diagnostics"
	InstallationsSystemOverview           InstallationsQuery = "system-overview"
	InstallationsTags                     InstallationsQuery = "tags"
)

var installationsQueries = map[InstallationsQuery]bool{
	InstallationsBasic:                    true,
	InstallationsStats:                    true,
	InstallationsOverallStats:             true,
	InstallationsAlarms:                   true,
	InstallationsPostAlarms:               true,
	InstallationsDynamicESSSettings:       true,
	InstallationsPostDynamicESSSettings:   true,
	InstallationsPatchDynamicESSSettings:  true,
	InstallationsFetchDynamicESSSchedules: true,
	InstallationsGPSDownload:              true,
	InstallationsDiagnostics:              true,
	InstallationsSystemOverview:           true,
	InstallationsTags:                     true,
}

// Valid reports whether q is a known installations sub-resource.
func (q InstallationsQuery) Valid() bool {
	return installationsQueries[q]
}

// UsersQuery selects the users resource.
type UsersQuery string

const (
	UsersMe            UsersQuery = "me"
	UsersInstallations UsersQuery = "installations"
)

// Valid reports whether q is a known users resource.
func (q UsersQuery) Valid() bool {
	return q == UsersMe || q == UsersInstallations
}

// Well-known widget types.
const (
	WidgetTemperature = "TempSummaryAndGraph"
	WidgetEVCharger   = "EvChargerSummary"
)

// RequestConfig is the declarative description of a single VRM request. It is
// treated as immutable once handed to the builder.
type RequestConfig struct {
	Family        Family             `json:"family" toml:"api_type"`
	Installations InstallationsQuery `json:"installations,omitempty" toml:"installations"`
	Users         UsersQuery         `json:"users,omitempty" toml:"users"`
	UserID        string             `json:"userId,omitempty" toml:"user_id"`

	Widget         string `json:"widget,omitempty" toml:"widget"`
	WidgetInstance string `json:"widgetInstance,omitempty" toml:"instance"`

	// SiteID is either a literal id or a {{scope.key}} context reference.
	SiteID string `json:"siteId,omitempty" toml:"site_id"`

	Attribute     string `json:"attribute,omitempty" toml:"attribute"`
	StatsInterval string `json:"statsInterval,omitempty" toml:"stats_interval"`
	ShowInstance  bool   `json:"showInstance,omitempty" toml:"show_instance"`
	StatsStart    string `json:"statsStart,omitempty" toml:"stats_start"`
	StatsEnd      string `json:"statsEnd,omitempty" toml:"stats_end"`
	UseUTC        bool   `json:"useUtc,omitempty" toml:"use_utc"`

	// Custom calls
	BaseURL string `json:"url,omitempty" toml:"url"`
	Query   string `json:"query,omitempty" toml:"query"`
	Method  string `json:"method,omitempty" toml:"method"`

	// Payload is sent as the JSON body of POST and PATCH requests.
	Payload json.RawMessage `json:"payload,omitempty" toml:"-"`

	DynamicESS DynamicESSOptions `json:"dynamicEss" toml:"dynamic_ess"`

	APIToken string `json:"-" toml:"-"`
}

// DynamicESSOptions are the inputs of the standalone Dynamic ESS API.
type DynamicESSOptions struct {
	VRMID            string `json:"vrmId,omitempty" toml:"vrm_id"`
	BMax             string `json:"bMax,omitempty" toml:"b_max"`
	TBMax            string `json:"tbMax,omitempty" toml:"tb_max"`
	FBMax            string `json:"fbMax,omitempty" toml:"fb_max"`
	TGMax            string `json:"tgMax,omitempty" toml:"tg_max"`
	FGMax            string `json:"fgMax,omitempty" toml:"fg_max"`
	BCycleCost       string `json:"bCycleCost,omitempty" toml:"b_cycle_cost"`
	BuyPriceFormula  string `json:"buyPriceFormula,omitempty" toml:"buy_price_formula"`
	SellPriceFormula string `json:"sellPriceFormula,omitempty" toml:"sell_price_formula"`
	GreenModeOn      bool   `json:"greenModeOn,omitempty" toml:"green_mode_on"`
	FeedInPossible   bool   `json:"feedInPossible,omitempty" toml:"feed_in_possible"`
	FeedInControlOn  bool   `json:"feedInControlOn,omitempty" toml:"feed_in_control_on"`
	Country          string `json:"country,omitempty" toml:"country"`
	BGoalHour        string `json:"bGoalHour,omitempty" toml:"b_goal_hour"`
	BGoalSOC         string `json:"bGoalSOC,omitempty" toml:"b_goal_soc"`
}
