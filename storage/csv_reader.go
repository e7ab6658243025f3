package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"sales-funnel-analytics/models"
)

// CSVSource reads a snapshot from a deal export. The header row names the
// upstream fields; unknown columns are kept, missing ones read as nil.
type CSVSource struct {
	path      string
	usersPath string
	now       func() time.Time
}

// NewCSVSource returns a source over the deal file at path and the optional
// `id,name` users file at usersPath.
func NewCSVSource(path, usersPath string) *CSVSource {
	return &CSVSource{path: path, usersPath: usersPath, now: time.Now}
}

// Snapshot reads the files. A nil Users map is returned when no users file is
// configured, so managers are shown by their raw ID.
func (s *CSVSource) Snapshot(ctx context.Context) (*models.Snapshot, error) {
	deals, err := readDeals(ctx, s.path)
	if err != nil {
		return nil, err
	}
	snap := &models.Snapshot{Deals: deals, FetchedAt: s.now()}

	if s.usersPath != "" {
		if snap.Users, err = readUsers(s.usersPath); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

func readDeals(ctx context.Context, path string) ([]models.RawDeal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv: open %q: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csv: read header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	var deals []models.RawDeal
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: read row: %w", err)
		}

		d := make(models.RawDeal, len(header))
		for i, h := range header {
			if i < len(rec) {
				d[h] = rawValue(rec[i])
			} else {
				d[h] = nil
			}
		}
		deals = append(deals, d)
	}
	return deals, nil
}

func readUsers(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv: open users %q: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv: read users: %w", err)
	}

	users := make(map[string]string, len(rows))
	for i, row := range rows {
		if len(row) < 2 {
			continue
		}
		id := strings.TrimSpace(strings.TrimPrefix(row[0], "\ufeff"))
		if i == 0 && strings.EqualFold(id, "id") {
			continue
		}
		if name := strings.TrimSpace(row[1]); id != "" && name != "" {
			users[id] = name
		}
	}
	return users, nil
}
