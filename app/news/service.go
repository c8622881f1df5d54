package news

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/exp/slog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Preferences supplies the user's preferred topics.
type Preferences interface {
	ListPreferences(ctx context.Context, userID string) ([]string, error)
}

// Service assembles, caches and mutates per-user feeds.
type Service struct {
	log      *slog.Logger
	prefs    Preferences
	fetcher  Fetcher
	cache    *Cache
	limiter  *rate.Limiter
	perTopic int
	group    singleflight.Group
}

// NewService creates new service. fetchEvery is the minimal spacing
// between upstream calls; the limiter is shared by every assembly in the
// process, so fetches stay serialized towards the provider's quota.
func NewService(lg *slog.Logger, prefs Preferences, fetcher Fetcher, cache *Cache,
	fetchEvery time.Duration, perTopic int) *Service {
	return &Service{
		log:      lg,
		prefs:    prefs,
		fetcher:  fetcher,
		cache:    cache,
		limiter:  rate.NewLimiter(rate.Every(fetchEvery), 1),
		perTopic: perTopic,
	}
}

// Feed returns the user's cached feed, assembling a fresh one on miss.
func (s *Service) Feed(ctx context.Context, userID string) (Feed, error) {
	feed, ok, err := s.cache.Get(userID)
	if err != nil {
		return nil, fmt.Errorf("read cache: %w", err)
	}
	if ok {
		return feed, nil
	}

	return s.assemble(ctx, userID)
}

// Rebuild re-assembles the user's feed from scratch; used by the expiry
// reactor after the cached copy dies.
func (s *Service) Rebuild(ctx context.Context, userID string) error {
	_, err := s.assemble(ctx, userID)
	return err
}

// Search returns the user's feed reduced to articles mentioning the
// keyword in title or description, assembling the feed on a cache miss.
func (s *Service) Search(ctx context.Context, userID, keyword string) (Feed, error) {
	feed, err := s.Feed(ctx, userID)
	if err != nil {
		return nil, err
	}

	return FilterByKeyword(feed, keyword), nil
}

// Flagged returns the cached feed reduced to articles with the flag set.
// An expired cache is reported as gone, never rebuilt here: the state
// being asked for lived in the dead entry.
func (s *Service) Flagged(_ context.Context, userID string, flag StateFlag) (Feed, error) {
	feed, ok, err := s.cache.Get(userID)
	if err != nil {
		return nil, fmt.Errorf("read cache: %w", err)
	}
	if !ok {
		return nil, ErrFeedGone
	}

	return FilterByFlag(flag, feed), nil
}

// MarkRead flips the read flag on an article in the user's cached feed.
func (s *Service) MarkRead(ctx context.Context, userID, articleID string) error {
	return s.mark(ctx, userID, articleID, FlagRead)
}

// MarkFavorite flips the favorite flag on an article in the user's
// cached feed.
func (s *Service) MarkFavorite(ctx context.Context, userID, articleID string) error {
	return s.mark(ctx, userID, articleID, FlagFavorite)
}

func (s *Service) mark(_ context.Context, userID, articleID string, flag StateFlag) error {
	feed, ok, err := s.cache.Get(userID)
	if err != nil {
		return fmt.Errorf("read cache: %w", err)
	}
	if !ok {
		return ErrFeedGone
	}

	if err := feed.MarkArticle(articleID, flag); err != nil {
		return err
	}

	// the full cache window is re-applied on every mutation write
	if err := s.cache.Set(userID, feed); err != nil {
		return fmt.Errorf("cache feed: %w", err)
	}

	return nil
}

// assemble builds the feed and stores it. Concurrent calls for the same
// user share a single execution, so a cold-cache race doesn't double the
// upstream calls.
func (s *Service) assemble(ctx context.Context, userID string) (Feed, error) {
	v, err, _ := s.group.Do(userID, func() (interface{}, error) {
		return s.assembleOnce(ctx, userID)
	})
	if err != nil {
		return nil, err
	}

	return v.(Feed), nil
}

// assembleOnce fetches one batch per preferred topic, strictly
// serialized: the upstream throttles back-to-back calls with 429s. Any
// fetch failure aborts the whole assembly and nothing is written.
func (s *Service) assembleOnce(ctx context.Context, userID string) (Feed, error) {
	topics, err := s.prefs.ListPreferences(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}

	feed := Feed{}
	for _, topic := range topics {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for limiter: %w", err)
		}

		articles, err := s.fetcher.Fetch(ctx, topic)
		if err != nil {
			return nil, fmt.Errorf("fetch %q: %w", topic, err)
		}

		if len(articles) > s.perTopic {
			articles = articles[:s.perTopic]
		}

		feed[topic] = Bucket{
			ID: uuid.NewString(),
			Articles: lo.Map(articles, func(a SourceArticle, _ int) Article {
				return Article{
					ID:          uuid.NewString(),
					Title:       a.Title,
					Description: a.Description,
					Content:     a.Content,
					URL:         a.URL,
					Image:       a.Image,
					PublishedAt: a.PublishedAt,
					Source:      a.Source,
				}
			}),
		}
	}

	if err := s.cache.Set(userID, feed); err != nil {
		return nil, fmt.Errorf("cache feed: %w", err)
	}

	s.log.DebugCtx(ctx, "assembled feed",
		slog.String("user_id", userID), slog.Int("topics", len(topics)))

	return feed, nil
}
