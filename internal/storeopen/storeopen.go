// Package storeopen picks a store.Store backend from a database URL, the
// single piece of wiring both cmd/cortex-server and cmd/cortexctl need
// and otherwise would duplicate. It lives apart from internal/store
// itself since store/sqlite and store/postgres both import internal/store
// and an import back the other way would cycle.
package storeopen

import (
	"context"
	"net/url"

	"github.com/cortexai/cortex-engine/internal/store"
	"github.com/cortexai/cortex-engine/internal/store/postgres"
	"github.com/cortexai/cortex-engine/internal/store/sqlite"
)

// Open dispatches to the postgres or sqlite backend by dsn's scheme.
func Open(ctx context.Context, dsn string, maxOpenConns, maxIdleConns int) (store.Store, error) {
	u, err := url.Parse(dsn)
	if err == nil && (u.Scheme == "postgres" || u.Scheme == "postgresql") {
		return postgres.NewStore(ctx, dsn, maxOpenConns, maxIdleConns)
	}
	return sqlite.NewStore(dsn)
}
