package exclusion

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapStore map[string]string

func (s mapStore) GetMetadata(_ context.Context, key string) (string, error) {
	v, ok := s[key]
	if !ok {
		return "", sql.ErrNoRows
	}
	return v, nil
}

func (s mapStore) SetMetadata(_ context.Context, key, value string) error {
	s[key] = value
	return nil
}

type recorder struct{ lines []string }

func (r *recorder) Record(_ context.Context, format string, args ...any) {
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

func TestAddRemoveIdempotent(t *testing.T) {
	ctx := context.Background()
	store := mapStore{}
	rec := &recorder{}
	r := New(store, rec)

	added, err := r.Add(ctx, 7)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = r.Add(ctx, 7)
	require.NoError(t, err)
	assert.False(t, added)

	added, err = r.Add(ctx, 3)
	require.NoError(t, err)
	assert.True(t, added)

	ids, err := r.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 3}, ids)
	assert.Equal(t, "[7,3]", store[Key])

	ok, err := r.Contains(ctx, 3)
	require.NoError(t, err)
	assert.True(t, ok)

	removed, err := r.Remove(ctx, 7)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = r.Remove(ctx, 7)
	require.NoError(t, err)
	assert.False(t, removed)

	assert.Equal(t, []string{
		"Excluded image added: Asset ID 7",
		"Excluded image added: Asset ID 3",
		"Excluded image removed: Asset ID 7",
	}, rec.lines)
}

func TestAddRejectsNonPositive(t *testing.T) {
	r := New(mapStore{}, nil)
	added, err := r.Add(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, added)
}

func TestListEmpty(t *testing.T) {
	r := New(mapStore{}, nil)
	ids, err := r.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)

	set, err := r.Set(context.Background())
	require.NoError(t, err)
	assert.Empty(t, set)
}

func TestListCorrupt(t *testing.T) {
	r := New(mapStore{Key: "not json"}, nil)
	_, err := r.List(context.Background())
	assert.Error(t, err)
}
