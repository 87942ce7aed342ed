package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/Seungwon-Robin/Chatbot/models"
)

var (
	// ErrLoad is returned when a catalog cannot be read or lacks required columns.
	ErrLoad = errors.New("catalog load failed")
	// ErrRowOutOfRange is returned by Get for a position outside the catalog.
	ErrRowOutOfRange = errors.New("catalog row out of range")
)

// Catalog column names.
const (
	ColumnGenre       = "genre"
	ColumnArtist      = "artist"
	ColumnSongTitle   = "song_title"
	ColumnDescription = "description"
)

var requiredColumns = []string{ColumnGenre, ColumnArtist, ColumnSongTitle, ColumnDescription}

// Catalog is the ordered, read-only list of songs. Row i of the catalog is
// row i of the similarity index.
type Catalog struct {
	rows []models.Song
}

func NewCatalog(rows []models.Song) *Catalog {
	return &Catalog{rows: append([]models.Song(nil), rows...)}
}

// LoadCatalog reads a CSV file with a header row naming at least the
// genre, artist, song_title and description columns.
func LoadCatalog(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	defer f.Close()

	catalog, err := ReadCatalog(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Printf("Loaded catalog %s (%d songs)", path, catalog.Len())
	return catalog, nil
}

// ReadCatalog parses CSV catalog data from r.
func ReadCatalog(r io.Reader) (*Catalog, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrLoad)
		}
		return nil, fmt.Errorf("%w: failed to read header: %w", ErrLoad, err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		cols[strings.TrimSpace(name)] = i
	}

	var missing []string
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns %s", ErrLoad, strings.Join(missing, ", "))
	}

	field := func(record []string, name string) string {
		i := cols[name]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []models.Song
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrLoad, line, err)
		}
		rows = append(rows, models.Song{
			Genre:       field(record, ColumnGenre),
			Artist:      field(record, ColumnArtist),
			SongTitle:   field(record, ColumnSongTitle),
			Description: field(record, ColumnDescription),
		})
	}

	return &Catalog{rows: rows}, nil
}

func (c *Catalog) Len() int { return len(c.rows) }

// Get returns the rows at the given positions, in the given order.
func (c *Catalog) Get(indices []int) ([]models.Song, error) {
	out := make([]models.Song, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= len(c.rows) {
			return nil, fmt.Errorf("%w: %d (catalog has %d rows)", ErrRowOutOfRange, idx, len(c.rows))
		}
		out[i] = c.rows[idx]
	}
	return out, nil
}

// Column returns every value of the named column in catalog order.
func (c *Catalog) Column(name string) ([]string, error) {
	var pick func(models.Song) string
	switch name {
	case ColumnGenre:
		pick = func(s models.Song) string { return s.Genre }
	case ColumnArtist:
		pick = func(s models.Song) string { return s.Artist }
	case ColumnSongTitle:
		pick = func(s models.Song) string { return s.SongTitle }
	case ColumnDescription:
		pick = func(s models.Song) string { return s.Description }
	default:
		return nil, fmt.Errorf("unknown catalog column %q", name)
	}

	values := make([]string, len(c.rows))
	for i, row := range c.rows {
		values[i] = pick(row)
	}
	return values, nil
}

// Rows returns a copy of all rows.
func (c *Catalog) Rows() []models.Song {
	return append([]models.Song(nil), c.rows...)
}
