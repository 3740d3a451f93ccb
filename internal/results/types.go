// Package results stores the outcome of interpretation runs so reports can be
// audited and exported after they were sent to the archive.
package results

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/ibh-daai/bone-mineral-density/internal/domain"
)

// Store defines the interface for result storage operations.
type Store interface {
	domain.ResultStore

	// Count returns the total number of stored results.
	Count(ctx context.Context) (int64, error)

	// ExportJSON writes every stored result to writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON reads an export and saves the results whose ID is not stored yet.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)
}

// Export represents the JSON export format.
type Export struct {
	Version    string                 `json:"version"`
	ExportedAt time.Time              `json:"exported_at"`
	Count      int                    `json:"count"`
	Results    []*domain.ResultRecord `json:"results"`
}

// maxExportLimit is the maximum number of results exported at once.
const maxExportLimit = 1000000

// exportVersion is the version of the export format.
const exportVersion = "1.0"

func writeExport(writer io.Writer, all []*domain.ResultRecord) error {
	export := &Export{
		Version:    exportVersion,
		ExportedAt: time.Now().UTC(),
		Count:      len(all),
		Results:    all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// importExport saves every result of an export whose ID exists() denies.
func importExport(ctx context.Context, reader io.Reader, exists func(context.Context, string) (bool, error), save func(context.Context, *domain.ResultRecord) error) (imported int, skipped int, err error) {
	var export Export
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, err
	}

	for _, r := range export.Results {
		found, err := exists(ctx, r.ID)
		if err != nil {
			return imported, skipped, err
		}
		if found {
			skipped++
			continue
		}
		if err := save(ctx, r); err != nil {
			return imported, skipped, err
		}
		imported++
	}
	return imported, skipped, nil
}
