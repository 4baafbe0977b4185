// Package chart loads the song catalog and resolves overdrive offsets.
package chart

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

var (
	// ErrSongNotFound is returned when no song has the requested title.
	ErrSongNotFound = errors.New("chart: song not found")
	// ErrNoChart is returned when a song has no offsets for a difficulty/instrument pair.
	ErrNoChart = errors.New("chart: no chart for selection")
)

// Song is one catalog entry.
// Timings maps a lowercase difficulty to an instrument key to offsets in ms.
type Song struct {
	DisplayTitle string                      `json:"display_title"`
	ArtistName   string                      `json:"artist_name"`
	Duration     float64                     `json:"duration"`
	AlbumArtURL  string                      `json:"album_art_url"`
	Timings      map[string]map[string][]int `json:"timings"`
}

// Offsets returns a copy of the offsets for a difficulty and instrument.
// Offsets are returned as stored; ordering is the chart's responsibility.
func (s *Song) Offsets(d Difficulty, i Instrument) ([]int, error) {
	byInst, ok := s.Timings[d.Key()]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %s charts", ErrNoChart, s.DisplayTitle, d)
	}
	offsets, ok := byInst[i.Key()]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %s %s chart", ErrNoChart, s.DisplayTitle, d, i)
	}
	out := make([]int, len(offsets))
	copy(out, offsets)
	return out, nil
}

// Count returns the number of offsets for a selection, or 0 when there is none.
func (s *Song) Count(d Difficulty, i Instrument) int {
	return len(s.Timings[d.Key()][i.Key()])
}

// Length formats the duration as m:ss.
func (s *Song) Length() string {
	secs := int(s.Duration)
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// Catalog is an immutable set of songs indexed by display title.
type Catalog struct {
	songs   []Song
	byTitle map[string]int
}

// Load reads a songs.json array from fs.
func Load(fs afero.Fs, path string) (*Catalog, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("chart: failed to read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("chart: failed to parse %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes a JSON array of songs.
// When titles repeat, the first entry wins.
func Parse(data []byte) (*Catalog, error) {
	var songs []Song
	if err := json.Unmarshal(data, &songs); err != nil {
		return nil, err
	}
	return New(songs), nil
}

// New builds a catalog from songs.
func New(songs []Song) *Catalog {
	c := &Catalog{
		songs:   songs,
		byTitle: make(map[string]int, len(songs)),
	}
	for i, s := range songs {
		if _, dup := c.byTitle[s.DisplayTitle]; !dup {
			c.byTitle[s.DisplayTitle] = i
		}
	}
	return c
}

// Len returns the number of songs.
func (c *Catalog) Len() int {
	return len(c.songs)
}

// Titles returns all display titles, sorted.
func (c *Catalog) Titles() []string {
	titles := make([]string, 0, len(c.byTitle))
	for t := range c.byTitle {
		titles = append(titles, t)
	}
	sort.Strings(titles)
	return titles
}

// Song looks up a song by exact display title.
func (c *Catalog) Song(title string) (*Song, error) {
	i, ok := c.byTitle[title]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSongNotFound, title)
	}
	return &c.songs[i], nil
}

// Resolve finds a song by exact title, then case-insensitively,
// then by best fuzzy match.
func (c *Catalog) Resolve(query string) (*Song, error) {
	if s, err := c.Song(query); err == nil {
		return s, nil
	}
	q := strings.TrimSpace(query)
	for _, t := range c.Titles() {
		if strings.EqualFold(t, q) {
			return c.Song(t)
		}
	}
	if hits := c.Search(q, 1); len(hits) > 0 {
		return c.Song(hits[0])
	}
	return nil, fmt.Errorf("%w: %q", ErrSongNotFound, query)
}
