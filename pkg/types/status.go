package types

import "encoding/json"

// Color is the status indicator shown next to a status line.
type Color string

const (
	ColorGreen  Color = "green"
	ColorYellow Color = "yellow"
	ColorOrange Color = "orange"
	ColorBlue   Color = "blue"
	ColorRed    Color = "red"
)

// Status is the human readable summary of a response. Only the summary
// matching the endpoint family is populated.
type Status struct {
	Text  string `json:"text"`
	Color Color  `json:"color"`

	User              *UserSummary       `json:"user,omitempty"`
	InstallationCount *int               `json:"installationCount,omitempty"`
	Stats             *StatsSummary      `json:"stats,omitempty"`
	DynamicESS        *DynamicESSSummary `json:"dynamicEss,omitempty"`
	Widget            *WidgetSummary     `json:"widget,omitempty"`

	Raw json.RawMessage `json:"raw,omitempty"`
}

type UserSummary struct {
	ID          string `json:"userId"`
	Name        string `json:"userName"`
	Email       string `json:"email,omitempty"`
	Country     string `json:"country,omitempty"`
	AccessLevel *int   `json:"accessLevel,omitempty"`
}

type StatsSummary struct {
	Key            string          `json:"key,omitempty"`
	Value          json.RawMessage `json:"value,omitempty"`
	FormattedValue string          `json:"formattedValue,omitempty"`
	Totals         json.RawMessage `json:"totals"`
}

// DynamicESSSummary holds the decoded settings. Mode and OperatingMode are nil
// when the response did not carry them.
type DynamicESSSummary struct {
	Mode              *int   `json:"mode"`
	OperatingMode     *int   `json:"operatingMode"`
	ModeName          string `json:"modeName,omitempty"`
	OperatingModeName string `json:"operatingModeName,omitempty"`
	IsGreenModeOn     *bool  `json:"isGreenModeOn,omitempty"`
}

type WidgetSummary struct {
	Type         string  `json:"type"`
	Instance     string  `json:"instance"`
	HasData      bool    `json:"hasData"`
	HasValidData bool    `json:"hasValidData"`
	Value        *string `json:"value"`
}
