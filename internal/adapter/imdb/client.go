// Package imdb downloads and parses the public IMDb dataset dumps
// (title.basics, title.episode, title.ratings) used to seed the shows
// catalog.
package imdb

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gabriel-vasile/mimetype"

	"github.com/showpulse/showpulse/internal/adapter/observability"
	"github.com/showpulse/showpulse/internal/config"
	"github.com/showpulse/showpulse/internal/domain"
)

// Dataset file names as published on datasets.imdbws.com.
const (
	BasicsFile   = "title.basics.tsv.gz"
	EpisodesFile = "title.episode.tsv.gz"
	RatingsFile  = "title.ratings.tsv.gz"
)

// DatasetClient fetches dataset dumps into a local cache directory.
type DatasetClient struct {
	cfg config.Config
	hc  *http.Client
}

// NewDatasetClient constructs a client with a generous timeout; the dumps
// run to hundreds of megabytes.
func NewDatasetClient(cfg config.Config) *DatasetClient {
	return &DatasetClient{
		cfg: cfg,
		hc:  &http.Client{Timeout: 15 * time.Minute},
	}
}

func (c *DatasetClient) getBackoffConfig() *backoff.ExponentialBackOff {
	expo := backoff.NewExponentialBackOff()
	maxElapsed, initial, maxInterval, multiplier := c.cfg.GetBackoffConfig()
	expo.MaxElapsedTime = maxElapsed
	expo.InitialInterval = initial
	expo.MaxInterval = maxInterval
	expo.Multiplier = multiplier
	return expo
}

// Download fetches one dataset file into the data directory and returns
// the local path. An existing file is reused unless force is set. The
// payload is sniffed after download; anything that is not gzip (e.g. an
// HTML error page served with a 200) is rejected.
func (c *DatasetClient) Download(ctx domain.Context, name string, force bool) (string, error) {
	dest := filepath.Join(c.cfg.DataDir, name)
	if !force {
		if _, err := os.Stat(dest); err == nil {
			slog.Info("dataset cached, skipping download", slog.String("file", name))
			return dest, nil
		}
	}
	if err := os.MkdirAll(c.cfg.DataDir, 0o755); err != nil {
		return "", fmt.Errorf("op=imdb.mkdir: %w", err)
	}

	url := c.cfg.IMDbBaseURL + "/" + name
	op := func() error {
		start := time.Now()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.hc.Do(req)
		observability.UpstreamRequestsTotal.WithLabelValues("imdb", "download").Inc()
		observability.UpstreamRequestDuration.WithLabelValues("imdb", "download").Observe(time.Since(start).Seconds())
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode == http.StatusTooManyRequests {
			slog.Warn("imdb rate limited", slog.String("file", name), slog.Int("status", resp.StatusCode))
			return fmt.Errorf("download status %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(fmt.Errorf("download status %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("download status %d", resp.StatusCode)
		}

		tmp, err := os.CreateTemp(c.cfg.DataDir, name+".tmp-*")
		if err != nil {
			return backoff.Permanent(err)
		}
		defer func() { _ = os.Remove(tmp.Name()) }()
		if _, err := io.Copy(tmp, resp.Body); err != nil {
			_ = tmp.Close()
			return err
		}
		if err := tmp.Close(); err != nil {
			return err
		}

		mt, err := mimetype.DetectFile(tmp.Name())
		if err != nil {
			return err
		}
		if !mt.Is("application/gzip") {
			return backoff.Permanent(fmt.Errorf("unexpected content type %s for %s", mt.String(), name))
		}
		return os.Rename(tmp.Name(), dest)
	}

	bo := backoff.WithContext(c.getBackoffConfig(), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return "", fmt.Errorf("op=imdb.download file=%s: %w", name, err)
	}
	slog.Info("dataset downloaded", slog.String("file", name), slog.String("dest", dest))
	return dest, nil
}
