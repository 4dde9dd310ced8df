package sqliteadapter

import (
	"context"

	"github.com/google/uuid"
)

// UUIDGenerator issues the text primary keys used by every SQLite table.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}
