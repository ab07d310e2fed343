// Package blob stores rendered artifacts by opaque reference.
//
// The ledger in the issuance store is authoritative; a blob may go missing
// at any time and callers detect that lazily through Exists or a NotFound
// from Get.
package blob

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"landdocs/pkg/platform/sentinel"
)

// Store is implemented by every backend.
type Store interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Exists(ctx context.Context, ref string) (bool, error)
	Delete(ctx context.Context, ref string) error
}

func newRef() string {
	return "artifacts/" + uuid.NewString()
}

func notFound(ref string) error {
	return fmt.Errorf("blob %s: %w", ref, sentinel.ErrNotFound)
}
