// Package usecase contains application business logic services.
package usecase

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/showpulse/showpulse/internal/adapter/imdb"
	"github.com/showpulse/showpulse/internal/domain"
)

// DatasetFetcher downloads one dataset dump and returns its local path.
type DatasetFetcher interface {
	Download(ctx domain.Context, name string, force bool) (string, error)
}

// IngestService builds the shows catalog from the IMDb dataset dumps.
type IngestService struct {
	Datasets DatasetFetcher
	Shows    domain.ShowRepository
	Episodes domain.EpisodeRepository

	// MinVotes and MaxShows bound the catalog; BackupDir, when set,
	// receives a CSV copy of everything written to the database.
	MinVotes  int
	MaxShows  int
	BackupDir string
}

// NewIngestService constructs an IngestService with its dependencies.
func NewIngestService(d DatasetFetcher, s domain.ShowRepository, e domain.EpisodeRepository, minVotes, maxShows int, backupDir string) IngestService {
	return IngestService{Datasets: d, Shows: s, Episodes: e, MinVotes: minVotes, MaxShows: maxShows, BackupDir: backupDir}
}

// IngestResult summarizes one ingest run.
type IngestResult struct {
	ShowsWritten    int
	EpisodesWritten int
	Took            time.Duration
}

// Run downloads the three dataset dumps, filters them down to the catalog,
// and writes shows then episodes. Episodes are resolved against the show
// ids returned by the upserts, so re-runs are safe.
func (s IngestService) Run(ctx domain.Context, forceDownload bool) (IngestResult, error) {
	start := time.Now()

	ratingsPath, err := s.Datasets.Download(ctx, imdb.RatingsFile, forceDownload)
	if err != nil {
		return IngestResult{}, err
	}
	basicsPath, err := s.Datasets.Download(ctx, imdb.BasicsFile, forceDownload)
	if err != nil {
		return IngestResult{}, err
	}
	episodesPath, err := s.Datasets.Download(ctx, imdb.EpisodesFile, forceDownload)
	if err != nil {
		return IngestResult{}, err
	}

	ratings, err := s.parseRatings(ratingsPath)
	if err != nil {
		return IngestResult{}, err
	}
	slog.Info("ratings parsed", slog.Int("titles", len(ratings)))

	shows, err := s.parseShows(basicsPath, ratings)
	if err != nil {
		return IngestResult{}, err
	}
	slog.Info("shows filtered", slog.Int("count", len(shows)))

	// tconst -> row id, for resolving episode parents
	showIDs := make(map[string]string, len(shows))
	for i := range shows {
		id, err := s.Shows.Upsert(ctx, shows[i])
		if err != nil {
			return IngestResult{}, fmt.Errorf("op=ingest.show %s: %w", shows[i].IMDbID, err)
		}
		shows[i].ID = id
		showIDs[shows[i].IMDbID] = id
	}

	episodes, err := s.parseEpisodes(episodesPath, showIDs, ratings)
	if err != nil {
		return IngestResult{}, err
	}
	written, err := s.Episodes.UpsertBatch(ctx, episodes)
	if err != nil {
		return IngestResult{}, fmt.Errorf("op=ingest.episodes: %w", err)
	}

	if s.BackupDir != "" {
		if err := s.writeBackup(shows, episodes); err != nil {
			// The database write already succeeded; a failed backup is not fatal.
			slog.Warn("csv backup failed", slog.Any("error", err))
		}
	}

	res := IngestResult{ShowsWritten: len(shows), EpisodesWritten: written, Took: time.Since(start)}
	slog.Info("ingest complete",
		slog.Int("shows", res.ShowsWritten),
		slog.Int("episodes", res.EpisodesWritten),
		slog.Duration("took", res.Took))
	return res, nil
}

func (s IngestService) parseRatings(path string) (map[string]imdb.Rating, error) {
	rc, err := imdb.OpenGzip(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return imdb.ParseRatings(rc)
}

func (s IngestService) parseShows(path string, ratings map[string]imdb.Rating) ([]domain.Show, error) {
	rc, err := imdb.OpenGzip(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return imdb.ParseShows(rc, ratings, s.MinVotes, s.MaxShows)
}

func (s IngestService) parseEpisodes(path string, showIDs map[string]string, ratings map[string]imdb.Rating) ([]domain.Episode, error) {
	rc, err := imdb.OpenGzip(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	parents := make(map[string]bool, len(showIDs))
	for tconst := range showIDs {
		parents[tconst] = true
	}
	rows, err := imdb.ParseEpisodes(rc, parents)
	if err != nil {
		return nil, err
	}

	eps := make([]domain.Episode, 0, len(rows))
	for _, row := range rows {
		e := domain.Episode{
			ShowID:        showIDs[row.ParentTconst],
			IMDbID:        row.Tconst,
			SeasonNumber:  row.SeasonNumber,
			EpisodeNumber: row.EpisodeNumber,
		}
		if rt, ok := ratings[row.Tconst]; ok {
			avg := rt.Average
			votes := rt.Votes
			e.AverageRating = &avg
			e.NumVotes = &votes
		}
		eps = append(eps, e)
	}
	return eps, nil
}

// writeBackup mirrors the ingested catalog to CSV files so a broken
// database write never loses a multi-hour run.
func (s IngestService) writeBackup(shows []domain.Show, episodes []domain.Episode) error {
	if err := os.MkdirAll(s.BackupDir, 0o755); err != nil {
		return fmt.Errorf("op=ingest.backup_dir: %w", err)
	}

	err := writeCSV(filepath.Join(s.BackupDir, "shows.csv"),
		[]string{"imdb_id", "title", "start_year", "end_year", "genres", "average_rating", "num_votes"},
		len(shows), func(w *csv.Writer, i int) error {
			sh := shows[i]
			return w.Write([]string{
				sh.IMDbID, sh.Title, strconv.Itoa(sh.StartYear), intPtrField(sh.EndYear),
				strings.Join(sh.Genres, ","), floatPtrField(sh.AverageRating), strconv.Itoa(sh.NumVotes),
			})
		})
	if err != nil {
		return err
	}

	return writeCSV(filepath.Join(s.BackupDir, "episodes.csv"),
		[]string{"imdb_id", "show_id", "season", "episode", "average_rating"},
		len(episodes), func(w *csv.Writer, i int) error {
			e := episodes[i]
			return w.Write([]string{
				e.IMDbID, e.ShowID, strconv.Itoa(e.SeasonNumber), strconv.Itoa(e.EpisodeNumber),
				floatPtrField(e.AverageRating),
			})
		})
}

func writeCSV(path string, header []string, n int, row func(w *csv.Writer, i int) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("op=ingest.backup_create: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("op=ingest.backup_write: %w", err)
	}
	for i := 0; i < n; i++ {
		if err := row(w, i); err != nil {
			return fmt.Errorf("op=ingest.backup_write: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func intPtrField(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}

func floatPtrField(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', 1, 64)
}
