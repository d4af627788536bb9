package objectstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PrefixOperations(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	prefix := ProjectPrefix("p1")
	require.NoError(t, s.Put(ctx, prefix+"brief.json", []byte(`{}`), "application/json"))
	require.NoError(t, s.Put(ctx, prefix+"options/a.png", []byte{1}, "image/png"))
	require.NoError(t, s.Put(ctx, ProjectPrefix("p2")+"brief.json", []byte(`{}`), "application/json"))

	keys, err := s.List(ctx, prefix)
	require.NoError(t, err)
	require.Len(t, keys, 2)

	require.NoError(t, s.DeletePrefix(ctx, prefix))

	keys, err = s.List(ctx, prefix)
	require.NoError(t, err)
	require.Empty(t, keys)

	// Other projects untouched.
	other, err := s.List(ctx, ProjectPrefix("p2"))
	require.NoError(t, err)
	require.Len(t, other, 1)
}

func TestMemoryStore_DeleteEmptyPrefixIsSuccess(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.DeletePrefix(context.Background(), ProjectPrefix("ghost")))
}

func TestMemoryStore_GetMissing(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), "nope")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}
