package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKVRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := NewKVRepository(time.Hour)

	_, found, err := r.Get(ctx, "s1", "chat_threads")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, r.Set(ctx, "s1", "chat_threads", []byte(`{"a":1}`)))
	v, found, err := r.Get(ctx, "s1", "chat_threads")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"a":1}`, string(v))

	_, found, _ = r.Get(ctx, "s2", "chat_threads")
	assert.False(t, found, "sessions are isolated")

	require.NoError(t, r.Delete(ctx, "s1", "chat_threads"))
	_, found, _ = r.Get(ctx, "s1", "chat_threads")
	assert.False(t, found)
}

func TestKVRepositoryCopiesValues(t *testing.T) {
	ctx := context.Background()
	r := NewKVRepository(0)

	buf := []byte(`"abc"`)
	require.NoError(t, r.Set(ctx, "s1", "current_chat", buf))
	buf[1] = 'z'

	v, _, _ := r.Get(ctx, "s1", "current_chat")
	assert.Equal(t, `"abc"`, string(v))
	v[1] = 'q'

	again, _, _ := r.Get(ctx, "s1", "current_chat")
	assert.Equal(t, `"abc"`, string(again))
}

func TestKVRepositoryClearScopesToSession(t *testing.T) {
	ctx := context.Background()
	r := NewKVRepository(time.Hour)
	require.NoError(t, r.Set(ctx, "s1", "a", []byte("1")))
	require.NoError(t, r.Set(ctx, "s1", "b", []byte("2")))
	require.NoError(t, r.Set(ctx, "s10", "a", []byte("3")))

	require.NoError(t, r.Clear(ctx, "s1"))

	_, found, _ := r.Get(ctx, "s1", "a")
	assert.False(t, found)
	_, found, _ = r.Get(ctx, "s1", "b")
	assert.False(t, found)
	_, found, _ = r.Get(ctx, "s10", "a")
	assert.True(t, found)
}

func TestKVRepositoryExpiry(t *testing.T) {
	ctx := context.Background()
	r := NewKVRepository(20 * time.Millisecond)
	require.NoError(t, r.Set(ctx, "s1", "a", []byte("1")))
	time.Sleep(40 * time.Millisecond)
	_, found, _ := r.Get(ctx, "s1", "a")
	assert.False(t, found)
}
