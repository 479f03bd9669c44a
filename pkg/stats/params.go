// Package stats builds the query parameters of the installation stats
// endpoint, including the resolution of relative time tokens.
package stats

import (
	"strconv"
	"time"

	"github.com/raterudder/vrmapi/pkg/types"
)

// Attribute codes with a dedicated parameter shape.
const (
	AttributeDynamicESS = "dynamic_ess"
	AttributeEVCS       = "evcs"
)

const defaultDynamicESSInterval = "hours"

// Parameters builds the stats query for cfg as of now. It never reads the
// clock; identical inputs produce identical output.
func Parameters(cfg types.RequestConfig, now time.Time) types.Params {
	var p types.Params

	if cfg.Attribute != AttributeDynamicESS {
		p.Set("type", "custom")
		if cfg.Attribute != "" {
			p.Set("attributeCodes[]", cfg.Attribute)
		}
		if cfg.ShowInstance {
			p.Set("show_instance", "1")
		}
	} else {
		p.Set("type", AttributeDynamicESS)
		if cfg.StatsInterval == "" {
			p.Set("interval", defaultDynamicESSInterval)
		}
	}

	if cfg.StatsInterval != "" {
		p.Set("interval", cfg.StatsInterval)
	}

	if cfg.Attribute == AttributeEVCS {
		p.Del("attributeCodes[]")
		p.Set("type", AttributeEVCS)
	}

	loc := now.Location()
	if cfg.UseUTC {
		loc = time.UTC
	}

	if present(cfg.StatsStart) {
		if ts, ok := ResolveStart(cfg.StatsStart, now, loc); ok {
			p.Set("start", strconv.FormatInt(ts, 10))
		}
	}
	if present(cfg.StatsEnd) {
		if ts, ok := ResolveEnd(cfg.StatsEnd, now, loc); ok {
			p.Set("end", strconv.FormatInt(ts, 10))
		}
	}

	return p
}

func present(token string) bool {
	return token != "" && token != "undefined"
}
