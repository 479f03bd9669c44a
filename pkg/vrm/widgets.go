package vrm

import (
	"encoding/json"

	"github.com/raterudder/vrmapi/pkg/types"
)

// widgetMetaKeys are entries of records.data that describe the response
// rather than a device attribute.
var widgetMetaKeys = map[string]bool{
	"hasOldData": true,
	"secondsAgo": true,
}

// widgetDef describes how to find and present the headline attribute of a
// widget type.
type widgetDef struct {
	attributeID string
	code        string
	label       string
	// text renders a matched entry's formatted value.
	text func(instance, formatted string) string
	// fallback is shown when the widget has data but no matching entry.
	fallback func(instance string) string
}

var widgetDefs = map[string]widgetDef{
	types.WidgetTemperature: {
		attributeID: "450",
		code:        "tsT",
		label:       "Temperature",
		text: func(instance, formatted string) string {
			return "Temperature (inst. " + instance + "): " + formatted
		},
		fallback: func(instance string) string {
			return "Temperature sensor (inst. " + instance + ")"
		},
	},
	types.WidgetEVCharger: {
		attributeID: "824",
		code:        "evs",
		label:       "Status",
		text: func(_, formatted string) string {
			return formatted
		},
		fallback: func(instance string) string {
			return "EV charger (inst. " + instance + ")"
		},
	},
}

type widgetEntry struct {
	key    string
	fields map[string]json.RawMessage
}

func (e widgetEntry) str(name string) string {
	s, _ := asString(e.fields[name])
	return s
}

// widgetLookup is one strategy for locating the headline entry.
type widgetLookup func(def widgetDef, entries []widgetEntry) (widgetEntry, bool)

// widgetLookups are tried in order; the first match wins.
var widgetLookups = []widgetLookup{
	func(def widgetDef, entries []widgetEntry) (widgetEntry, bool) {
		for _, e := range entries {
			if e.key == def.attributeID {
				return e, true
			}
		}
		return widgetEntry{}, false
	},
	func(def widgetDef, entries []widgetEntry) (widgetEntry, bool) {
		for _, e := range entries {
			if e.str("code") == def.code {
				return e, true
			}
		}
		return widgetEntry{}, false
	},
	func(def widgetDef, entries []widgetEntry) (widgetEntry, bool) {
		for _, e := range entries {
			if e.str("dataAttributeName") == def.label {
				return e, true
			}
		}
		return widgetEntry{}, false
	},
}

// widgetEntries returns the device attribute entries of records.data that
// carry a value, in document order.
func widgetEntries(body json.RawMessage) []widgetEntry {
	records, ok := field(body, "records")
	if !ok {
		return nil
	}
	data, ok := field(records, "data")
	if !ok {
		return nil
	}
	keys, values, ok := orderedObject(data)
	if !ok {
		return nil
	}
	var entries []widgetEntry
	for _, k := range keys {
		if widgetMetaKeys[k] || !isObject(values[k]) {
			continue
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(values[k], &fields); err != nil {
			continue
		}
		if _, ok := fields["value"]; !ok {
			continue
		}
		entries = append(entries, widgetEntry{key: k, fields: fields})
	}
	return entries
}

func interpretWidget(e WidgetsEndpoint, body json.RawMessage) types.Status {
	instance := e.Instance
	if instance == "" {
		instance = "0"
	}
	summary := &types.WidgetSummary{Type: e.Widget, Instance: instance}

	entries := widgetEntries(body)
	if len(entries) == 0 {
		return types.Status{Text: "No data - incorrect instance?", Color: types.ColorYellow, Widget: summary}
	}
	summary.HasData = true

	def, known := widgetDefs[e.Widget]
	if !known {
		summary.HasValidData = true
		return types.Status{Text: "Widget data received", Color: types.ColorGreen, Widget: summary}
	}

	var (
		entry widgetEntry
		found bool
	)
	for _, lookup := range widgetLookups {
		if entry, found = lookup(def, entries); found {
			break
		}
	}
	if !found {
		return types.Status{Text: def.fallback(instance), Color: types.ColorGreen, Widget: summary}
	}

	if v, ok := asNumber(entry.fields["isValid"]); ok && v == 0 {
		return types.Status{Text: "Invalid data", Color: types.ColorYellow, Widget: summary}
	}
	if v, ok := asBool(entry.fields["hasOldData"]); ok && v {
		return types.Status{Text: "Stale data - check sensor", Color: types.ColorYellow, Widget: summary}
	}

	formatted := scalarText(entry.fields["formattedValue"])
	if _, ok := entry.fields["formattedValue"]; !ok {
		formatted = scalarText(entry.fields["value"])
	}
	summary.HasValidData = true
	summary.Value = &formatted
	return types.Status{Text: def.text(instance, formatted), Color: types.ColorGreen, Widget: summary}
}
