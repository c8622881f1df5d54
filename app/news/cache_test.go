package news

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/exp/slog"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "news:user-1", Key("user-1"))

	tbl := []struct {
		key    string
		userID string
		ok     bool
	}{
		{"news:user-1", "user-1", true},
		{"news:user:1", "user:1", true},
		{"sess:user-1", "", false},
		{"news:", "", false},
		{"news", "", false},
		{"", "", false},
	}

	for _, tt := range tbl {
		t.Run(tt.key, func(t *testing.T) {
			userID, ok := UserID(tt.key)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.userID, userID)
		})
	}
}

func TestCache_SetGet(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c := NewCache(slog.Default(), time.Minute)
	defer func() { require.NoError(t, c.Close()) }()

	_, ok, err := c.Get("user-1")
	require.NoError(t, err)
	assert.False(t, ok)

	feed := feedFixture()
	require.NoError(t, c.Set("user-1", feed))

	got, ok, err := c.Get("user-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, feed, got)

	// the cached copy is independent of what callers mutate
	require.NoError(t, got.MarkArticle("art-1", FlagRead))
	again, ok, err := c.Get("user-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, again["golang"].Articles[0].Read)
}

func TestCache_Expiry(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c := NewCache(slog.Default(), 30*time.Millisecond)
	defer func() { require.NoError(t, c.Close()) }()

	require.NoError(t, c.Set("user-1", feedFixture()))

	assert.Eventually(t, func() bool {
		_, ok, err := c.Get("user-1")
		require.NoError(t, err)
		return !ok
	}, time.Second, 5*time.Millisecond)

	select {
	case key := <-c.Expired():
		assert.Equal(t, "news:user-1", key)
	case <-time.After(2 * time.Second):
		t.Fatal("no expiry notification received")
	}
}

func TestCache_SetResetsTTL(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c := NewCache(slog.Default(), 200*time.Millisecond)
	defer func() { require.NoError(t, c.Close()) }()

	require.NoError(t, c.Set("user-1", feedFixture()))

	time.Sleep(120 * time.Millisecond)
	// a mutation-style overwrite re-arms the full window
	require.NoError(t, c.Set("user-1", feedFixture()))

	time.Sleep(120 * time.Millisecond)
	_, ok, err := c.Get("user-1")
	require.NoError(t, err)
	assert.True(t, ok, "entry expired despite the overwrite at half-life")

	assert.Eventually(t, func() bool {
		_, ok, err := c.Get("user-1")
		require.NoError(t, err)
		return !ok
	}, time.Second, 10*time.Millisecond)
}
