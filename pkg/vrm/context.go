package vrm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
)

var contextRefRe = regexp.MustCompile(`^\{\{(node|flow|global)\.(.+)\}\}$`)

// ContextRef is a parsed {{scope.key}} reference.
type ContextRef struct {
	Scope string
	Key   string
}

func (r ContextRef) String() string {
	return "{{" + r.Scope + "." + r.Key + "}}"
}

// ParseContextRef reports whether s is a context reference.
func ParseContextRef(s string) (ContextRef, bool) {
	m := contextRefRe.FindStringSubmatch(s)
	if m == nil {
		return ContextRef{}, false
	}
	return ContextRef{Scope: m[1], Key: m[2]}, true
}

// ContextResolver looks up values in a scoped key/value store.
type ContextResolver interface {
	Get(ctx context.Context, scope, key string) (any, bool, error)
}

// ResolveSiteID returns the site id to use for a request. A context reference
// in configured is looked up through resolver; otherwise override wins over
// configured when it is non-empty.
func ResolveSiteID(ctx context.Context, configured, override string, resolver ContextResolver) (string, error) {
	ref, ok := ParseContextRef(configured)
	if !ok {
		if override != "" {
			return override, nil
		}
		return configured, nil
	}
	if resolver == nil {
		return "", &ContextLookupError{Ref: ref}
	}
	v, found, err := resolver.Get(ctx, ref.Scope, ref.Key)
	if err != nil {
		return "", &ContextLookupError{Ref: ref, Err: err}
	}
	if !found || v == nil {
		return "", &ContextLookupError{Ref: ref}
	}
	return stringify(v), nil
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case json.RawMessage:
		return scalarText(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return fmt.Sprint(x)
	}
}
