package news

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-pkgz/requester"
	"github.com/savkin/prefeed/pkg/logx"
	"golang.org/x/exp/slog"
)

// SourceArticle is an article as the news source returns it, without any
// user state attached.
type SourceArticle struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	URL         string    `json:"url"`
	Image       string    `json:"image"`
	PublishedAt time.Time `json:"publishedAt"`
	Source      Source    `json:"source"`
}

// Fetcher retrieves the article batch for a single topic.
type Fetcher interface {
	Fetch(ctx context.Context, topic string) ([]SourceArticle, error)
}

// GNews is a client for the gnews.io search API.
type GNews struct {
	log      *slog.Logger
	cl       *http.Client
	endpoint string
	apiKey   string
}

// NewGNews creates new GNews client.
func NewGNews(lg *slog.Logger, timeout time.Duration, endpoint, apiKey string) *GNews {
	rq := requester.New(
		http.Client{Timeout: timeout},
		logx.LoggingRoundTripper(lg, logx.RoundTripperOpts{
			Level:        slog.LevelDebug,
			SecretParams: []string{"apikey"},
		}),
	)

	return &GNews{log: lg, cl: rq.Client(), endpoint: endpoint, apiKey: apiKey}
}

// Fetch requests English articles matching the topic. Callers must treat
// the error as fatal for the whole assembly; any transport or non-2xx
// failure collapses into ErrUpstream. One outbound call, no retries.
func (g *GNews) Fetch(ctx context.Context, topic string) ([]SourceArticle, error) {
	u, err := url.Parse(g.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}

	q := u.Query()
	q.Set("lang", "en")
	q.Set("q", topic)
	q.Set("apikey", g.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := g.cl.Do(req)
	if err != nil {
		g.log.WarnCtx(ctx, "news request failed",
			slog.String("topic", topic), slog.Any("err", err))
		return nil, ErrUpstream
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			g.log.WarnCtx(ctx, "failed to close response body", slog.Any("err", err))
		}
	}()

	ok := resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices
	if !ok {
		g.log.WarnCtx(ctx, "news request failed",
			slog.String("topic", topic), slog.Int("status", resp.StatusCode))
		return nil, ErrUpstream
	}

	var body struct {
		Articles []SourceArticle `json:"articles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		g.log.WarnCtx(ctx, "malformed news response",
			slog.String("topic", topic), slog.Any("err", err))
		return nil, ErrUpstream
	}

	return body.Articles, nil
}
