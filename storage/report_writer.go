package storage

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"sales-funnel-analytics/models"
)

// Export formats understood by WriteReport.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// WriteReport serialises r to w as indented JSON or YAML.
func WriteReport(w io.Writer, format string, r *models.Report) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("export: json: %w", err)
		}
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("export: yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("export: yaml: %w", err)
		}
	default:
		return fmt.Errorf("export: unsupported format %q", format)
	}
	return nil
}
