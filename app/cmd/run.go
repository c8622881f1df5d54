// Package cmd contains commands for the application.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/savkin/prefeed/app/api"
	"github.com/savkin/prefeed/app/news"
	"github.com/savkin/prefeed/app/store"
	"github.com/savkin/prefeed/app/users"
	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"
)

// Run is a command to run the server.
type Run struct {
	Addr string `long:"addr" env:"ADDR" default:":8080" description:"address to listen on"`

	Auth struct {
		Secret     string        `long:"secret" env:"SECRET" required:"true" description:"HMAC secret for signing tokens"`
		Issuer     string        `long:"issuer" env:"ISSUER" default:"http://localhost:8080" description:"issuer claim for signed tokens"`
		TokenTTL   time.Duration `long:"token-ttl" env:"TOKEN_TTL" default:"1h" description:"lifetime of issued tokens"`
		BcryptCost int           `long:"bcrypt-cost" env:"BCRYPT_COST" default:"10" description:"bcrypt cost for password hashes"`
	} `group:"auth" namespace:"auth" env-namespace:"AUTH"`

	News struct {
		APIKey     string        `long:"api-key" env:"API_KEY" required:"true" description:"news search API key"`
		Endpoint   string        `long:"endpoint" env:"ENDPOINT" default:"https://gnews.io/api/v4/search" description:"news search endpoint"`
		CacheTTL   time.Duration `long:"cache-ttl" env:"CACHE_TTL" default:"1h" description:"lifetime of a cached feed"`
		FetchEvery time.Duration `long:"fetch-every" env:"FETCH_EVERY" default:"2s" description:"minimal spacing between upstream calls"`
		PerTopic   int           `long:"per-topic" env:"PER_TOPIC" default:"10" description:"articles kept per topic"`
		Timeout    time.Duration `long:"timeout" env:"TIMEOUT" default:"30s" description:"timeout for upstream calls"`
	} `group:"news" namespace:"news" env-namespace:"NEWS"`

	StorePath string `long:"store-path" env:"STORE_PATH" description:"parent dir for bolt files"`

	Version string `no-flag:"true"`
}

// Execute runs the command.
func (r Run) Execute(_ []string) error {
	lg := slog.Default()

	s, err := store.NewBolt(r.StorePath)
	if err != nil {
		return fmt.Errorf("make store: %w", err)
	}

	defer func() {
		if err := s.Close(); err != nil {
			lg.Error("close bolt store", slog.Any("err", err))
		}
	}()

	feedCache := news.NewCache(lg.With(slog.String("prefix", "cache")), r.News.CacheTTL)
	defer func() {
		if err := feedCache.Close(); err != nil {
			lg.Error("close feed cache", slog.Any("err", err))
		}
	}()

	feed := news.NewService(
		lg.With(slog.String("prefix", "news")),
		s,
		news.NewGNews(
			lg.With(slog.String("prefix", "gnews")),
			r.News.Timeout,
			r.News.Endpoint,
			r.News.APIKey,
		),
		feedCache,
		r.News.FetchEvery,
		r.News.PerTopic,
	)

	accounts := users.NewService(
		lg.With(slog.String("prefix", "users")),
		s,
		r.Auth.Secret,
		r.Auth.Issuer,
		r.Auth.TokenTTL,
		r.Auth.BcryptCost,
	)

	rst := &api.Rest{
		Logger:  lg.With(slog.String("prefix", "api")),
		Users:   accounts,
		News:    feed,
		Version: r.Version,
	}

	srv := &http.Server{
		Addr:    r.Addr,
		Handler: rst.Router(),
		// cold assemblies wait out the per-topic fetch spacing, the write
		// timeout has to cover the worst-case preference list
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	reactor := &news.Reactor{
		Logger:    lg.With(slog.String("prefix", "reactor")),
		Expired:   feedCache.Expired(),
		Rebuilder: feed,
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	ewg, ctx := errgroup.WithContext(ctx)
	ewg.Go(func() error {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
		select {
		case sig := <-sig:
			slog.Warn("caught signal, stopping", slog.String("signal", sig.String()))
			stop()
			return ctx.Err()
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	ewg.Go(func() error {
		lg.Info("starting expiry reactor")
		reactor.Run(ctx)
		lg.Warn("expiry reactor stopped")
		return nil
	})
	ewg.Go(func() error {
		lg.Info("starting server", slog.String("addr", r.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen and serve: %w", err)
		}
		return nil
	})
	ewg.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}

		lg.Warn("server stopped")
		return nil
	})

	if err := ewg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}
