// Package storage holds the scoped key/value context that site id references
// and stored responses live in.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/levenlabs/go-lflag"
)

// Context scopes.
const (
	ScopeNode   = "node"
	ScopeFlow   = "flow"
	ScopeGlobal = "global"
)

var ErrUnknownScope = errors.New("unknown scope")

// Store is a scoped key/value store. Get reports found=false for keys that
// were never set.
type Store interface {
	Get(ctx context.Context, scope, key string) (any, bool, error)
	Set(ctx context.Context, scope, key string, value any) error
	Keys(ctx context.Context, scope string) ([]string, error)

	// Lifecycle
	Close() error
}

// ValidScope reports whether scope is one of the known scopes.
func ValidScope(scope string) bool {
	switch scope {
	case ScopeNode, ScopeFlow, ScopeGlobal:
		return true
	}
	return false
}

// Configured sets up the Store based on flags.
func Configured() Store {
	provider := lflag.String("context-store", "memory", "Context store to use (available: memory, firestore)")

	var p struct{ Store }

	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "memory":
			p.Store = NewMemory()
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			p.Store = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		default:
			panic(fmt.Sprintf("unknown context store: %s", *provider))
		}
	})

	return &p
}
