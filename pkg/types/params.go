package types

import (
	"encoding/json"
	"net/url"
	"strings"
)

// Params is an insertion-ordered set of query parameters. Multi-valued
// parameters are encoded as repeated pairs. The zero value is ready to use.
type Params struct {
	keys   []string
	values map[string][]string
}

// Set replaces the values of key. A key that already exists keeps its
// original position.
func (p *Params) Set(key string, values ...string) {
	if p.values == nil {
		p.values = map[string][]string{}
	}
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = append([]string(nil), values...)
}

// Del removes key.
func (p *Params) Del(key string) {
	if _, ok := p.values[key]; !ok {
		return
	}
	delete(p.values, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i:i], p.keys[i+1:]...)
			break
		}
	}
}

// Get returns the first value of key.
func (p Params) Get(key string) (string, bool) {
	vs, ok := p.values[key]
	if !ok || len(vs) == 0 {
		return "", ok
	}
	return vs[0], true
}

// Values returns every value of key.
func (p Params) Values(key string) []string {
	return p.values[key]
}

// Has reports whether key is set.
func (p Params) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

// Keys returns the keys in insertion order.
func (p Params) Keys() []string {
	return append([]string(nil), p.keys...)
}

// Len returns the number of keys.
func (p Params) Len() int {
	return len(p.keys)
}

// Encode returns the form-urlencoded representation in insertion order.
func (p Params) Encode() string {
	var sb strings.Builder
	for _, k := range p.keys {
		ek := url.QueryEscape(k)
		for _, v := range p.values[k] {
			if sb.Len() > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(ek)
			sb.WriteByte('=')
			sb.WriteString(url.QueryEscape(v))
		}
	}
	return sb.String()
}

// MarshalJSON encodes single values as strings and multi-valued keys as arrays.
func (p Params) MarshalJSON() ([]byte, error) {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		sb.Write(kb)
		sb.WriteByte(':')
		var v any = p.values[k]
		if vs := p.values[k]; len(vs) == 1 {
			v = vs[0]
		}
		vb, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		sb.Write(vb)
	}
	sb.WriteByte('}')
	return []byte(sb.String()), nil
}
