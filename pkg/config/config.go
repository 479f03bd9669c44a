// Package config loads node definitions from a TOML file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/raterudder/vrmapi/pkg/node"
	"github.com/raterudder/vrmapi/pkg/types"
)

// File is a parsed node definition file.
type File struct {
	// Interval is the poll interval of nodes that do not set their own.
	Interval time.Duration
	Nodes    []Node
}

// Node is a node definition with its poll interval.
type Node struct {
	node.Config
	Interval time.Duration
}

type rawFile struct {
	Token    string    `toml:"token"`
	TokenEnv string    `toml:"token_env"`
	Interval string    `toml:"interval"`
	Nodes    []rawNode `toml:"node"`
}

type rawNode struct {
	Name                   string              `toml:"name"`
	Token                  string              `toml:"token"`
	TokenEnv               string              `toml:"token_env"`
	Interval               string              `toml:"interval"`
	MinInterval            string              `toml:"min_interval"`
	StoreInGlobalContext   bool                `toml:"store_in_global_context"`
	TransformPriceSchedule bool                `toml:"transform_price_schedule"`
	Verbose                bool                `toml:"verbose"`
	Payload                string              `toml:"payload"`
	Request                types.RequestConfig `toml:"request"`
}

var families = map[types.Family]bool{
	types.FamilyUsers:         true,
	types.FamilyInstallations: true,
	types.FamilyWidgets:       true,
	types.FamilyDynamicESS:    true,
	types.FamilyCustom:        true,
}

// Load reads and validates the node definitions at path.
func Load(path string) (File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse validates the node definitions in b. Tokens fall back from the node
// to the file level; a token_env names an environment variable to read the
// token from.
func Parse(b []byte) (File, error) {
	var raw rawFile
	if err := toml.Unmarshal(b, &raw); err != nil {
		return File{}, fmt.Errorf("parse config: %w", err)
	}

	var f File
	var err error
	if f.Interval, err = duration(raw.Interval); err != nil {
		return File{}, fmt.Errorf("interval: %w", err)
	}
	defaultToken := token(raw.Token, raw.TokenEnv)

	seen := map[string]bool{}
	for i, rn := range raw.Nodes {
		n, err := rn.node(defaultToken, f.Interval)
		if err != nil {
			return File{}, fmt.Errorf("node %d: %w", i, err)
		}
		if seen[n.Name] {
			return File{}, fmt.Errorf("node %d: duplicate name %q", i, n.Name)
		}
		seen[n.Name] = true
		f.Nodes = append(f.Nodes, n)
	}
	return f, nil
}

func (rn rawNode) node(defaultToken string, defaultInterval time.Duration) (Node, error) {
	name := strings.TrimSpace(rn.Name)
	if name == "" {
		return Node{}, errors.New("name is required")
	}
	if !families[rn.Request.Family] {
		return Node{}, fmt.Errorf("%s: unknown api_type %q", name, rn.Request.Family)
	}

	n := Node{Config: node.Config{
		Name:                   name,
		Request:                rn.Request,
		StoreInGlobalContext:   rn.StoreInGlobalContext,
		TransformPriceSchedule: rn.TransformPriceSchedule,
		Verbose:                rn.Verbose,
	}}

	var err error
	if n.Interval, err = duration(rn.Interval); err != nil {
		return Node{}, fmt.Errorf("%s: interval: %w", name, err)
	}
	if n.Interval == 0 {
		n.Interval = defaultInterval
	}
	if n.MinInterval, err = duration(rn.MinInterval); err != nil {
		return Node{}, fmt.Errorf("%s: min_interval: %w", name, err)
	}

	if p := strings.TrimSpace(rn.Payload); p != "" {
		if !json.Valid([]byte(p)) {
			return Node{}, fmt.Errorf("%s: payload is not valid JSON", name)
		}
		n.Request.Payload = json.RawMessage(p)
	}

	n.Request.APIToken = token(rn.Token, rn.TokenEnv)
	if n.Request.APIToken == "" {
		n.Request.APIToken = defaultToken
	}
	return n, nil
}

func token(literal, env string) string {
	if literal != "" {
		return literal
	}
	if env != "" {
		return os.Getenv(env)
	}
	return ""
}

func duration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
