package news

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

// PreferencesMock mocks the Preferences interface.
type PreferencesMock struct {
	ListPreferencesFunc func(ctx context.Context, userID string) ([]string, error)
}

func (m *PreferencesMock) ListPreferences(ctx context.Context, userID string) ([]string, error) {
	return m.ListPreferencesFunc(ctx, userID)
}

// FetcherMock mocks the Fetcher interface.
type FetcherMock struct {
	FetchFunc func(ctx context.Context, topic string) ([]SourceArticle, error)
}

func (m *FetcherMock) Fetch(ctx context.Context, topic string) ([]SourceArticle, error) {
	return m.FetchFunc(ctx, topic)
}

func sourceArticles(topic string, n int) []SourceArticle {
	result := make([]SourceArticle, n)
	for i := range result {
		result[i] = SourceArticle{
			Title:       fmt.Sprintf("%s article %d", topic, i),
			Description: fmt.Sprintf("about %s, issue %d", topic, i),
			URL:         fmt.Sprintf("https://example.com/%s/%d", topic, i),
			PublishedAt: time.Date(2023, 3, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour),
			Source:      Source{Name: "example", URL: "https://example.com"},
		}
	}
	return result
}

func newTestService(t *testing.T, prefs Preferences, fetcher Fetcher) *Service {
	t.Helper()

	c := NewCache(slog.Default(), time.Minute)
	t.Cleanup(func() { require.NoError(t, c.Close()) })

	return NewService(slog.Default(), prefs, fetcher, c, 0, 10)
}

func TestService_Feed_assemblesOnMiss(t *testing.T) {
	var fetched []string
	svc := newTestService(t,
		&PreferencesMock{ListPreferencesFunc: func(_ context.Context, userID string) ([]string, error) {
			assert.Equal(t, "user-1", userID)
			return []string{"golang", "space"}, nil
		}},
		&FetcherMock{FetchFunc: func(_ context.Context, topic string) ([]SourceArticle, error) {
			fetched = append(fetched, topic)
			if topic == "golang" {
				return sourceArticles(topic, 12), nil
			}
			return sourceArticles(topic, 2), nil
		}},
	)

	feed, err := svc.Feed(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"golang", "space"}, fetched, "fetches must follow preference order")

	require.Len(t, feed, 2)
	require.Contains(t, feed, "golang")
	require.Contains(t, feed, "space")
	assert.Len(t, feed["golang"].Articles, 10, "source batch must be truncated")
	assert.Len(t, feed["space"].Articles, 2)

	seen := map[string]struct{}{}
	for _, bucket := range feed {
		require.NotEmpty(t, bucket.ID)
		seen[bucket.ID] = struct{}{}
		for _, a := range bucket.Articles {
			require.NotEmpty(t, a.ID)
			seen[a.ID] = struct{}{}
			assert.False(t, a.Read)
			assert.False(t, a.Favorite)
		}
	}
	assert.Len(t, seen, 2+10+2, "bucket and article ids must be unique")
}

func TestService_Feed_cacheHit(t *testing.T) {
	var calls int
	svc := newTestService(t,
		&PreferencesMock{ListPreferencesFunc: func(context.Context, string) ([]string, error) {
			return []string{"golang"}, nil
		}},
		&FetcherMock{FetchFunc: func(_ context.Context, topic string) ([]SourceArticle, error) {
			calls++
			return sourceArticles(topic, 3), nil
		}},
	)

	first, err := svc.Feed(context.Background(), "user-1")
	require.NoError(t, err)

	second, err := svc.Feed(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "cache hit must not go upstream")
	assert.Equal(t, first, second, "round trip through the cache must be lossless")
}

func TestService_Feed_emptyPreferences(t *testing.T) {
	var calls int
	svc := newTestService(t,
		&PreferencesMock{ListPreferencesFunc: func(context.Context, string) ([]string, error) {
			return nil, nil
		}},
		&FetcherMock{FetchFunc: func(context.Context, string) ([]SourceArticle, error) {
			calls++
			return nil, nil
		}},
	)

	feed, err := svc.Feed(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, feed)
	assert.Zero(t, calls)

	// an empty feed is a cached result, not a miss
	_, err = svc.Feed(context.Background(), "user-1")
	require.NoError(t, err)

	_, ok, err := svc.cache.Get("user-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestService_Feed_fetchFailureAborts(t *testing.T) {
	var calls int
	svc := newTestService(t,
		&PreferencesMock{ListPreferencesFunc: func(context.Context, string) ([]string, error) {
			return []string{"golang", "space", "finance"}, nil
		}},
		&FetcherMock{FetchFunc: func(_ context.Context, topic string) ([]SourceArticle, error) {
			calls++
			if topic == "space" {
				return nil, ErrUpstream
			}
			return sourceArticles(topic, 1), nil
		}},
	)

	_, err := svc.Feed(context.Background(), "user-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpstream))
	assert.Equal(t, 2, calls, "assembly must stop at the first failure")

	_, ok, err := svc.cache.Get("user-1")
	require.NoError(t, err)
	assert.False(t, ok, "no partial feed may be written")
}

func TestService_MarkAndFilter(t *testing.T) {
	svc := newTestService(t,
		&PreferencesMock{ListPreferencesFunc: func(context.Context, string) ([]string, error) {
			return []string{"golang", "space"}, nil
		}},
		&FetcherMock{FetchFunc: func(_ context.Context, topic string) ([]SourceArticle, error) {
			return sourceArticles(topic, 3), nil
		}},
	)

	feed, err := svc.Feed(context.Background(), "user-1")
	require.NoError(t, err)

	target := feed["golang"].Articles[1].ID
	require.NoError(t, svc.MarkRead(context.Background(), "user-1", target))

	read, err := svc.Flagged(context.Background(), "user-1", FlagRead)
	require.NoError(t, err)
	require.Len(t, read, 1)
	require.Len(t, read["golang"].Articles, 1)
	assert.Equal(t, target, read["golang"].Articles[0].ID)
	assert.True(t, read["golang"].Articles[0].Read)

	favs, err := svc.Flagged(context.Background(), "user-1", FlagFavorite)
	require.NoError(t, err)
	assert.Empty(t, favs)

	err = svc.MarkFavorite(context.Background(), "user-1", "00000000-0000-0000-0000-000000000000")
	assert.True(t, errors.Is(err, ErrArticleNotFound))
}

func TestService_miss_isGoneForStatefulReads(t *testing.T) {
	svc := newTestService(t,
		&PreferencesMock{ListPreferencesFunc: func(context.Context, string) ([]string, error) {
			t.Fatal("stateful reads must not assemble")
			return nil, nil
		}},
		&FetcherMock{FetchFunc: func(context.Context, string) ([]SourceArticle, error) {
			t.Fatal("stateful reads must not fetch")
			return nil, nil
		}},
	)

	_, err := svc.Flagged(context.Background(), "user-1", FlagRead)
	assert.True(t, errors.Is(err, ErrFeedGone))

	err = svc.MarkRead(context.Background(), "user-1", "00000000-0000-0000-0000-000000000000")
	assert.True(t, errors.Is(err, ErrFeedGone))
}

func TestService_Search(t *testing.T) {
	var calls int
	svc := newTestService(t,
		&PreferencesMock{ListPreferencesFunc: func(context.Context, string) ([]string, error) {
			return []string{"golang"}, nil
		}},
		&FetcherMock{FetchFunc: func(_ context.Context, topic string) ([]SourceArticle, error) {
			calls++
			return []SourceArticle{
				{Title: "AI breakthrough", Description: "new model"},
				{Title: "Compilers", Description: "inlining deep dive", Content: "ai only here"},
			}, nil
		}},
	)

	// search falls back to assembly on a cold cache
	found, err := svc.Search(context.Background(), "user-1", "AI")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	require.Len(t, found, 1)
	require.Len(t, found["golang"].Articles, 1)
	assert.Equal(t, "AI breakthrough", found["golang"].Articles[0].Title)

	none, err := svc.Search(context.Background(), "user-1", "quantum")
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.Equal(t, 1, calls, "second search must hit the cache")
}

func TestService_assemble_singleFlight(t *testing.T) {
	var calls int32
	svc := newTestService(t,
		&PreferencesMock{ListPreferencesFunc: func(context.Context, string) ([]string, error) {
			return []string{"golang"}, nil
		}},
		&FetcherMock{FetchFunc: func(_ context.Context, topic string) ([]SourceArticle, error) {
			atomic.AddInt32(&calls, 1)
			time.Sleep(50 * time.Millisecond)
			return sourceArticles(topic, 1), nil
		}},
	)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Feed(context.Background(), "user-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls),
		"racing cold reads must share one assembly")
}
