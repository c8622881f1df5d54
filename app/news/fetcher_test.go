package news

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

const gnewsPayload = `{
	"totalArticles": 2,
	"articles": [
		{
			"title": "Go 1.20 released",
			"description": "profile-guided optimization arrives",
			"content": "long article body",
			"url": "https://example.com/go-1-20",
			"image": "https://example.com/go.png",
			"publishedAt": "2023-02-01T10:00:00Z",
			"source": {"name": "example", "url": "https://example.com"}
		},
		{
			"title": "AI breakthrough",
			"description": "new model sets records",
			"content": "even longer article body",
			"url": "https://example.com/ai",
			"image": "",
			"publishedAt": "2023-02-02T11:30:00Z",
			"source": {"name": "example", "url": "https://example.com"}
		}
	]
}`

func TestGNews_Fetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "en", r.URL.Query().Get("lang"))
		assert.Equal(t, "golang", r.URL.Query().Get("q"))
		assert.Equal(t, "secret-key", r.URL.Query().Get("apikey"))

		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte(gnewsPayload))
		require.NoError(t, err)
	}))
	defer ts.Close()

	cl := NewGNews(slog.Default(), 5*time.Second, ts.URL, "secret-key")

	articles, err := cl.Fetch(context.Background(), "golang")
	require.NoError(t, err)

	require.Len(t, articles, 2)
	assert.Equal(t, SourceArticle{
		Title:       "Go 1.20 released",
		Description: "profile-guided optimization arrives",
		Content:     "long article body",
		URL:         "https://example.com/go-1-20",
		Image:       "https://example.com/go.png",
		PublishedAt: time.Date(2023, 2, 1, 10, 0, 0, 0, time.UTC),
		Source:      Source{Name: "example", URL: "https://example.com"},
	}, articles[0])
	assert.Equal(t, "AI breakthrough", articles[1].Title)
}

func TestGNews_Fetch_failures(t *testing.T) {
	tbl := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"too many requests", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}},
		{"server error", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"unauthorized", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}},
		{"malformed body", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"articles": "not-a-list"}`))
		}},
	}

	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()

			cl := NewGNews(slog.Default(), 5*time.Second, ts.URL, "secret-key")

			articles, err := cl.Fetch(context.Background(), "golang")
			assert.True(t, errors.Is(err, ErrUpstream))
			assert.Nil(t, articles)
		})
	}
}

func TestGNews_Fetch_transportError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	ts.Close() // nobody listens anymore

	cl := NewGNews(slog.Default(), time.Second, ts.URL, "secret-key")

	_, err := cl.Fetch(context.Background(), "golang")
	assert.True(t, errors.Is(err, ErrUpstream))
}
