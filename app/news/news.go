// Package news contains the personalized feed: assembly from the user's
// preferred topics, cached state and read/favorite filtering.
package news

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

// ErrFeedGone indicates the cached feed existed at some point but has
// expired since; the caller must not rebuild it implicitly.
var ErrFeedGone = errors.New("cached feed expired")

// ErrArticleNotFound indicates the cached feed does not contain the
// referenced article.
var ErrArticleNotFound = errors.New("article not found")

// ErrUpstream covers every transport, auth or non-2xx failure of the news
// source; no partial data ever comes with it.
var ErrUpstream = errors.New("news source unavailable")

// StateFlag is a per-article boolean the user can flip. Flags only go
// from false to true, there is no unmark operation.
type StateFlag string

// Known state flags.
const (
	FlagRead     StateFlag = "read"
	FlagFavorite StateFlag = "favorite"
)

// Source describes where an article was published.
type Source struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Article is a single fetched article plus the user's state on it. ID is
// assigned once at assembly time and survives until the cache entry dies.
type Article struct {
	ID          string    `json:"id"`
	Read        bool      `json:"read"`
	Favorite    bool      `json:"favorite"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	URL         string    `json:"url"`
	Image       string    `json:"image"`
	PublishedAt time.Time `json:"publishedAt"`
	Source      Source    `json:"source"`
}

// Bucket groups the articles fetched for a single preferred topic.
type Bucket struct {
	ID       string    `json:"id"`
	Articles []Article `json:"articles"`
}

// Feed maps a preferred topic to its bucket of articles. An empty feed is
// a legitimate result for a user without preferences, not a cache miss.
type Feed map[string]Bucket

// MarkArticle sets the flag on the article with the given id, mutating
// the feed in place. First match wins, ids are unique by construction.
// Returns ErrArticleNotFound when no bucket holds the article, leaving
// the feed untouched.
func (f Feed) MarkArticle(articleID string, flag StateFlag) error {
	for _, bucket := range f {
		for i := range bucket.Articles {
			if bucket.Articles[i].ID != articleID {
				continue
			}

			switch flag {
			case FlagRead:
				bucket.Articles[i].Read = true
			case FlagFavorite:
				bucket.Articles[i].Favorite = true
			default:
				return fmt.Errorf("unknown flag %q", flag)
			}

			return nil
		}
	}

	return fmt.Errorf("article %q: %w", articleID, ErrArticleNotFound)
}

// FilterByFlag returns a new feed containing only the articles with the
// flag set. Buckets left without a single matching article are dropped
// entirely, never returned empty.
func FilterByFlag(flag StateFlag, f Feed) Feed {
	result := Feed{}
	for topic, bucket := range f {
		matched := lo.Filter(bucket.Articles, func(a Article, _ int) bool {
			if flag == FlagFavorite {
				return a.Favorite
			}
			return a.Read
		})

		if len(matched) == 0 {
			continue
		}

		result[topic] = Bucket{ID: bucket.ID, Articles: matched}
	}

	return result
}

// FilterByKeyword returns a new feed containing only the articles whose
// title or description contain the keyword, case-insensitively. Content
// is intentionally not searched. Buckets left without matches are
// dropped.
func FilterByKeyword(f Feed, keyword string) Feed {
	keyword = strings.ToLower(keyword)

	result := Feed{}
	for topic, bucket := range f {
		matched := lo.Filter(bucket.Articles, func(a Article, _ int) bool {
			return strings.Contains(strings.ToLower(a.Title), keyword) ||
				strings.Contains(strings.ToLower(a.Description), keyword)
		})

		if len(matched) == 0 {
			continue
		}

		result[topic] = Bucket{ID: bucket.ID, Articles: matched}
	}

	return result
}
