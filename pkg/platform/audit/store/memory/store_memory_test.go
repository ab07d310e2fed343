package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "landdocs/pkg/platform/audit"
)

func TestInMemoryStoreFillsCategoryAndFilters(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	require.NoError(t, s.Append(ctx, audit.Event{Kind: audit.EventDocumentGenerated, DocumentID: "d1"}))
	require.NoError(t, s.Append(ctx, audit.Event{Kind: audit.EventDocumentDownloaded, DocumentID: "d1"}))
	require.NoError(t, s.Append(ctx, audit.Event{Kind: audit.EventDuplicateActiveDetected, DocumentID: "d2"}))

	byDoc, err := s.ListByDocument(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, byDoc, 2)
	assert.Equal(t, audit.CategoryCompliance, byDoc[0].Category)
	assert.Equal(t, audit.CategoryOperations, byDoc[1].Category)

	security, err := s.ListByCategory(ctx, audit.CategorySecurity)
	require.NoError(t, err)
	require.Len(t, security, 1)
	assert.Equal(t, "d2", security[0].DocumentID)

	none, err := s.ListByDocument(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestInMemoryStoreListAllIsACopy(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	require.NoError(t, s.Append(ctx, audit.Event{Kind: audit.EventDocumentDeleted, DocumentID: "d1"}))

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	all[0].DocumentID = "changed"

	again, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "d1", again[0].DocumentID)
}
