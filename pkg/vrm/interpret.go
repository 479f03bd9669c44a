package vrm

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/raterudder/vrmapi/pkg/types"
)

var dynamicESSModes = map[int]string{
	0: "Off",
	1: "Auto",
	2: "Buy (deprecated)",
	3: "Sell (deprecated)",
	4: "Local",
}

var dynamicESSOperatingModes = map[int]string{
	0: "Trade",
	1: "Green",
}

// Interpret summarizes the response body of a request made to ep. It never
// fails: malformed or missing fields produce a neutral classification.
func Interpret(ep Endpoint, body json.RawMessage) types.Status {
	var st types.Status
	if v, ok := field(body, "success"); ok {
		if success, isBool := asBool(v); isBool && !success {
			st = types.Status{Text: "Request failed", Color: types.ColorYellow}
			if code, ok := field(body, "error_code"); ok && !isNull(code) {
				st.Text = scalarText(code)
			}
			st.Raw = body
			return st
		}
	}

	switch e := ep.(type) {
	case UsersEndpoint:
		st = interpretUsers(e.Query, body)
	case InstallationsEndpoint:
		switch e.Query {
		case types.InstallationsStats:
			st = interpretStats(body)
		case types.InstallationsDynamicESSSettings:
			st = interpretDynamicESS(body)
		default:
			st = okStatus()
		}
	case WidgetsEndpoint:
		st = interpretWidget(e, body)
	default:
		st = okStatus()
	}
	st.Raw = body
	return st
}

func okStatus() types.Status {
	return types.Status{Text: "Ok", Color: types.ColorGreen}
}

func interpretUsers(q types.UsersQuery, body json.RawMessage) types.Status {
	switch q {
	case types.UsersMe:
		user, ok := field(body, "user")
		if !ok || !isObject(user) {
			return types.Status{Text: "No user data found", Color: types.ColorYellow}
		}
		var fields map[string]json.RawMessage
		_ = json.Unmarshal(user, &fields)
		s := &types.UserSummary{
			ID:   scalarText(fields["id"]),
			Name: scalarText(fields["name"]),
		}
		s.Email, _ = asString(fields["email"])
		s.Country, _ = asString(fields["country"])
		if lvl, ok := asInt(fields["accessLevel"]); ok {
			s.AccessLevel = &lvl
		}
		return types.Status{
			Text:  s.Name + " (ID: " + s.ID + ")",
			Color: types.ColorGreen,
			User:  s,
		}
	case types.UsersInstallations:
		records, ok := field(body, "records")
		var list []json.RawMessage
		if !ok || json.Unmarshal(records, &list) != nil || list == nil {
			return types.Status{Text: "No installations data found", Color: types.ColorYellow}
		}
		n := len(list)
		text := strconv.Itoa(n) + " installations"
		if n == 1 {
			text = "1 installation"
		}
		return types.Status{Text: text, Color: types.ColorGreen, InstallationCount: &n}
	default:
		return types.Status{Text: "Users data received", Color: types.ColorGreen}
	}
}

func interpretStats(body json.RawMessage) types.Status {
	totals, ok := field(body, "totals")
	if !ok || isNull(totals) {
		return types.Status{Text: "No stats data", Color: types.ColorYellow}
	}
	keys, values, isObj := orderedObject(totals)
	if !isObj || len(keys) == 0 {
		return types.Status{
			Text:  "No totals",
			Color: types.ColorYellow,
			Stats: &types.StatsSummary{Totals: totals},
		}
	}

	key := keys[0]
	value := values[key]
	formatted := formatStatValue(value)
	return types.Status{
		Text:  strings.ReplaceAll(key, "_", " ") + ": " + formatted,
		Color: types.ColorGreen,
		Stats: &types.StatsSummary{
			Key:            key,
			Value:          value,
			FormattedValue: formatted,
			Totals:         totals,
		},
	}
}

// formatStatValue renders numbers with one decimal, rounding half away from
// zero. Other values are shown as they are.
func formatStatValue(v json.RawMessage) string {
	f, ok := asNumber(v)
	if !ok {
		return scalarText(v)
	}
	r := math.Round(f*10) / 10
	if r == 0 {
		// avoid "-0.0"
		r = 0
	}
	return strconv.FormatFloat(r, 'f', 1, 64)
}

func interpretDynamicESS(body json.RawMessage) types.Status {
	noData := types.Status{
		Text:       "No data",
		Color:      types.ColorYellow,
		DynamicESS: &types.DynamicESSSummary{},
	}
	data, ok := field(body, "data")
	if !ok {
		return noData
	}
	mode, hasMode := field(data, "mode")
	opMode, hasOpMode := field(data, "operatingMode")
	if !hasMode || !hasOpMode || isNull(mode) || isNull(opMode) {
		return noData
	}

	s := &types.DynamicESSSummary{}
	modeName, opModeName := "Unknown", "Unknown"
	if m, ok := asInt(mode); ok {
		s.Mode = &m
		if name, ok := dynamicESSModes[m]; ok {
			modeName = name
			s.ModeName = name
		}
	}
	if m, ok := asInt(opMode); ok {
		s.OperatingMode = &m
		if name, ok := dynamicESSOperatingModes[m]; ok {
			opModeName = name
			s.OperatingModeName = name
		}
	}
	if v, ok := field(data, "isGreenModeOn"); ok {
		if b, ok := asBool(v); ok {
			s.IsGreenModeOn = &b
		}
	}

	color := types.ColorGreen
	if s.Mode != nil && *s.Mode == 0 {
		color = types.ColorBlue
	}
	return types.Status{
		Text:       modeName + " - " + opModeName + " mode",
		Color:      color,
		DynamicESS: s,
	}
}
