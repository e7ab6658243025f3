package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"time"

	"sales-funnel-analytics/models"
	"sales-funnel-analytics/utils"
)

// CSVWriter dumps raw (unnormalized) deals to a CSV file whose header row is
// models.RawFields, and optionally the user lookup to a second `id,name` file.
// It is safe for concurrent use.
type CSVWriter struct {
	mu        sync.Mutex
	file      *os.File
	writer    *csv.Writer
	usersPath string
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
// An empty usersPath skips the user lookup file.
func NewCSVWriter(path, usersPath string) (*CSVWriter, error) {
	f, err := createFile(path)
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(f)
	if err := w.Write(models.RawFields); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w, usersPath: usersPath}, nil
}

// WriteSnapshot appends every raw deal of snap to the file.
func (c *CSVWriter) WriteSnapshot(ctx context.Context, snap *models.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, d := range snap.Deals {
		if err := ctx.Err(); err != nil {
			return err
		}
		row := make([]string, len(models.RawFields))
		for i, f := range models.RawFields {
			row[i], _ = rawText(d[f])
		}
		if err := c.writer.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}
	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		return fmt.Errorf("csv: flush: %w", err)
	}

	if c.usersPath == "" || len(snap.Users) == 0 {
		return nil
	}
	return writeUsers(c.usersPath, snap.Users)
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writer.Flush()
	return c.file.Close()
}

func writeUsers(path string, users map[string]string) error {
	f, err := createFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	rows := [][]string{{"id", "name"}}
	for _, id := range slices.SortedFunc(maps.Keys(users), utils.CompareIDs) {
		rows = append(rows, []string{id, users[id]})
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("csv: write users: %w", err)
	}
	return nil
}

// WriteStalled writes the stalled-deal worklist to path, one deal per row.
func WriteStalled(path string, deals []models.StalledDeal) error {
	f, err := createFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	rows := [][]string{{"id", "title", "manager", "amount", "days_stalled", "created_at"}}
	for _, d := range deals {
		created := ""
		if !d.CreatedAt.IsZero() {
			created = d.CreatedAt.Format(time.DateOnly)
		}
		rows = append(rows, []string{
			d.ID,
			d.Title,
			d.Manager,
			strconv.FormatFloat(d.Amount, 'f', 2, 64),
			strconv.Itoa(d.DaysStalled),
			created,
		})
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("csv: write stalled: %w", err)
	}
	return nil
}

func createFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}
	return f, nil
}
