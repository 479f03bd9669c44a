package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/vrmapi/pkg/log"
	"github.com/raterudder/vrmapi/pkg/node"
	"github.com/raterudder/vrmapi/pkg/storage"
)

// seed writes context values into the Firestore emulator so nodes configured
// with {{scope.key}} site references can be run locally.
func main() {
	os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	projectID := lflag.String("seed-project-id", "vrmapi-dev", "Firestore project id")
	database := lflag.String("seed-database", "", "Firestore database")
	site := lflag.String("seed-site-id", "123456", "Installation id to seed")
	siteKey := lflag.String("seed-site-key", "victron.site", "Key the installation id is stored under in every scope")
	nodeName := lflag.String("seed-node", "", "Node whose node scope receives the installation id")
	token := lflag.String("seed-token", "", "VRM token to seed into the flow context")
	lflag.Configure()

	ctx := context.Background()
	s := storage.NewFirestore(*projectID, *database)
	if err := s.Init(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to connect to firestore", slog.Any("error", err))
		os.Exit(1)
	}
	defer s.Close()

	log.Ctx(ctx).InfoContext(ctx, "seeding context", slog.String("site", *site))

	set := func(scope, key string, value any) {
		if err := s.Set(ctx, scope, key, value); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to seed context", slog.String("scope", scope), slog.String("key", key), slog.Any("error", err))
			os.Exit(1)
		}
		log.Ctx(ctx).InfoContext(ctx, "seeded", slog.String("scope", scope), slog.String("key", key))
	}

	set(storage.ScopeGlobal, *siteKey, *site)
	set(storage.ScopeFlow, *siteKey, *site)
	if *nodeName != "" {
		set(storage.ScopeNode, node.NodeKey(*nodeName, *siteKey), *site)
	}
	if *token != "" {
		set(storage.ScopeFlow, node.TokenContextKey, *token)
	}
}
