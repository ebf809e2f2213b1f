package db

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritas-client/llm"
)

// sharedBackends open two independent handles on the same storage, the way
// two client processes would
var sharedBackends = []struct {
	name string
	open func(t *testing.T) (KV, KV)
}{
	{"sqlite", func(t *testing.T) (KV, KV) {
		path := filepath.Join(t.TempDir(), "shared.db")
		a, err := New(path)
		require.NoError(t, err)
		b, err := New(path)
		require.NoError(t, err)
		return a, b
	}},
	{"redis", func(t *testing.T) (KV, KV) {
		mr := miniredis.RunT(t)
		a, err := NewRedisKV(context.Background(), RedisOptions{Addr: mr.Addr()})
		require.NoError(t, err)
		b, err := NewRedisKV(context.Background(), RedisOptions{Addr: mr.Addr()})
		require.NoError(t, err)
		return a, b
	}},
}

func forEachSharedBackend(t *testing.T, fn func(t *testing.T, a, b *Store)) {
	for _, sb := range sharedBackends {
		t.Run(sb.name, func(t *testing.T) {
			kvA, kvB := sb.open(t)
			a, b := NewStore(kvA), NewStore(kvB)
			t.Cleanup(func() {
				_ = a.Close()
				_ = b.Close()
			})
			fn(t, a, b)
		})
	}
}

func TestConcurrentAppendsAcrossHandles(t *testing.T) {
	forEachSharedBackend(t, func(t *testing.T, a, b *Store) {
		ctx := context.Background()
		const perWriter = 50

		var wg sync.WaitGroup
		for w, s := range []*Store{a, b, a, b} {
			wg.Add(1)
			go func(w int, s *Store) {
				defer wg.Done()
				for i := 0; i < perWriter; i++ {
					preview := fmt.Sprintf("w%d-%d", w, i)
					_, err := s.AppendHistory(ctx, HistoryItem{ContentType: llm.ContentText, Preview: preview, Result: result(llm.VerdictAuthentic)})
					assert.NoError(t, err)
					_, err = s.RecordRule(ctx, llm.Rule{ContentType: llm.ContentText, Pattern: preview})
					assert.NoError(t, err)
					_, err = s.UpsertConversation(ctx, "shared", llm.ChatMessage{Role: llm.RoleUser, Content: preview})
					assert.NoError(t, err)
				}
			}(w, s)
		}
		wg.Wait()

		items, err := a.ListHistory(ctx)
		require.NoError(t, err)
		assert.Len(t, items, 4*perWriter)

		rules, err := b.ListRules(ctx)
		require.NoError(t, err)
		assert.Len(t, rules, 4*perWriter)

		conv, err := a.GetConversation(ctx, "shared")
		require.NoError(t, err)
		assert.Len(t, conv.Messages, 4*perWriter)
	})
}

func TestUpdateDeletesOnNil(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		require.NoError(t, s.kv.Set(ctx, "k", []byte("v")))

		require.NoError(t, s.kv.Update(ctx, "k", func(old []byte) ([]byte, error) {
			assert.Equal(t, "v", string(old))
			return nil, nil
		}))
		_, found, err := s.kv.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, found)

		require.NoError(t, s.kv.Update(ctx, "k", func(old []byte) ([]byte, error) {
			assert.Nil(t, old)
			return []byte("fresh"), nil
		}))
		val, found, err := s.kv.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "fresh", string(val))
	})
}

func TestUpdateKeepsValueOnError(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		require.NoError(t, s.kv.Set(ctx, "k", []byte("v")))

		err := s.kv.Update(ctx, "k", func([]byte) ([]byte, error) {
			return []byte("lost"), ErrNotFound
		})
		assert.ErrorIs(t, err, ErrNotFound)

		val, _, err := s.kv.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v", string(val))
	})
}
