package imdb

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/showpulse/showpulse/internal/domain"
)

// nullField is the dataset's marker for a missing value.
const nullField = `\N`

// Rating is one row of title.ratings keyed by tconst.
type Rating struct {
	Average float64
	Votes   int
}

// EpisodeRow is one row of title.episode before shows are resolved to
// database ids.
type EpisodeRow struct {
	Tconst        string
	ParentTconst  string
	SeasonNumber  int
	EpisodeNumber int
}

// OpenGzip opens a .tsv.gz file for streaming reads.
func OpenGzip(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("op=imdb.open: %w", err)
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("op=imdb.gzip: %w", err)
	}
	return &gzipFile{gz: gz, f: f}, nil
}

type gzipFile struct {
	gz *gzip.Reader
	f  *os.File
}

func (g *gzipFile) Read(p []byte) (int, error) { return g.gz.Read(p) }
func (g *gzipFile) Close() error {
	gzErr := g.gz.Close()
	if err := g.f.Close(); err != nil {
		return err
	}
	return gzErr
}

// scanTSV streams r line by line, splitting on tabs, and calls fn with
// each data row. The header row is skipped. The dataset embeds literal
// quote characters, so this does not go through encoding/csv.
func scanTSV(r io.Reader, fn func(fields []string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	first := true
	for sc.Scan() {
		if first {
			first = false
			continue
		}
		line := sc.Text()
		if line == "" {
			continue
		}
		if err := fn(strings.Split(line, "\t")); err != nil {
			return err
		}
	}
	return sc.Err()
}

// ParseRatings reads title.ratings into a tconst-keyed map.
func ParseRatings(r io.Reader) (map[string]Rating, error) {
	out := make(map[string]Rating, 1<<20)
	err := scanTSV(r, func(f []string) error {
		if len(f) < 3 {
			return nil
		}
		avg, err := strconv.ParseFloat(f[1], 64)
		if err != nil {
			return nil
		}
		votes, err := strconv.Atoi(f[2])
		if err != nil {
			return nil
		}
		out[f[0]] = Rating{Average: avg, Votes: votes}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("op=imdb.parse_ratings: %w", err)
	}
	return out, nil
}

// ParseShows reads title.basics and returns series that pass the catalog
// filters: tvSeries or tvMiniSeries, non-adult, started 1990 or later,
// and at least minVotes votes in ratings. Results are ordered by vote
// count descending and capped at maxShows.
//
// title.basics columns: tconst, titleType, primaryTitle, originalTitle,
// isAdult, startYear, endYear, runtimeMinutes, genres.
func ParseShows(r io.Reader, ratings map[string]Rating, minVotes, maxShows int) ([]domain.Show, error) {
	var shows []domain.Show
	err := scanTSV(r, func(f []string) error {
		if len(f) < 9 {
			return nil
		}
		if f[1] != "tvSeries" && f[1] != "tvMiniSeries" {
			return nil
		}
		if f[4] != "0" {
			return nil
		}
		startYear, ok := intField(f[5])
		if !ok || startYear < 1990 {
			return nil
		}
		rt, ok := ratings[f[0]]
		if !ok || rt.Votes < minVotes {
			return nil
		}
		s := domain.Show{
			IMDbID:    f[0],
			Title:     f[2],
			StartYear: startYear,
			Genres:    splitGenres(f[8]),
			NumVotes:  rt.Votes,
		}
		avg := rt.Average
		s.AverageRating = &avg
		if f[3] != nullField && f[3] != f[2] {
			orig := f[3]
			s.OriginalTitle = &orig
		}
		if y, ok := intField(f[6]); ok {
			s.EndYear = &y
		}
		if m, ok := intField(f[7]); ok {
			s.RuntimeMinutes = &m
		}
		shows = append(shows, s)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("op=imdb.parse_shows: %w", err)
	}
	sort.SliceStable(shows, func(i, j int) bool { return shows[i].NumVotes > shows[j].NumVotes })
	if maxShows > 0 && len(shows) > maxShows {
		shows = shows[:maxShows]
	}
	return shows, nil
}

// ParseEpisodes reads title.episode and returns rows belonging to the
// given parents. Rows missing a season or episode number are dropped.
//
// title.episode columns: tconst, parentTconst, seasonNumber, episodeNumber.
func ParseEpisodes(r io.Reader, parents map[string]bool) ([]EpisodeRow, error) {
	var rows []EpisodeRow
	err := scanTSV(r, func(f []string) error {
		if len(f) < 4 {
			return nil
		}
		if !parents[f[1]] {
			return nil
		}
		season, ok := intField(f[2])
		if !ok {
			return nil
		}
		episode, ok := intField(f[3])
		if !ok {
			return nil
		}
		rows = append(rows, EpisodeRow{
			Tconst:        f[0],
			ParentTconst:  f[1],
			SeasonNumber:  season,
			EpisodeNumber: episode,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("op=imdb.parse_episodes: %w", err)
	}
	return rows, nil
}

func intField(s string) (int, bool) {
	if s == nullField || s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func splitGenres(s string) []string {
	if s == nullField || s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}
