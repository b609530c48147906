package membership

import (
	"context"

	"github.com/uptrace/bun"
)

// RegisterModels wires the association table into bun's model registry.
// Hosts call it once on the database handle before building providers.
func RegisterModels(db *bun.DB) {
	db.RegisterModel((*AccountRole)(nil))
}

// CreateSchema creates the provider tables if they do not exist. It is a
// convenience for hosts that own schema management elsewhere and for
// tests; production deployments usually run their own migrations.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	RegisterModels(db)

	models := []any{
		(*Account)(nil),
		(*Role)(nil),
		(*AccountRole)(nil),
	}
	for _, m := range models {
		if _, err := db.NewCreateTable().
			Model(m).
			IfNotExists().
			WithForeignKeys().
			Exec(ctx); err != nil {
			return storageError(err, "failed to create membership schema")
		}
	}
	return nil
}
