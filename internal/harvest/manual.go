package harvest

import (
	"context"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/umwelt-info/harvester/internal/dataset"
	"github.com/umwelt-info/harvester/internal/errs"
	"github.com/umwelt-info/harvester/internal/hconfig"
)

// manualHarvester reads a local TOML file of hand-curated datasets,
// grounded on original_source/src/harvester/manual.rs. source.URL is
// interpreted as a filesystem path, not an HTTP endpoint.
type manualHarvester struct {
	source hconfig.Source
	region *dataset.Region
}

func (h *manualHarvester) Harvest(_ context.Context, sink Sink) (BatchResult, error) {
	raw, err := os.ReadFile(h.source.URL)
	if err != nil {
		return BatchResult{}, errs.Batch(h.source.Name, err)
	}

	var contents manualFileContents
	if _, err := toml.Decode(string(raw), &contents); err != nil {
		return BatchResult{}, errs.Batch(h.source.Name, err)
	}

	failed := 0
	for _, entry := range contents.Datasets {
		d := entry.toDataset()
		d.Region = h.region
		if err := writeRecord(sink, entry.ID, d); err != nil {
			failed++
		}
	}

	count := len(contents.Datasets)
	return BatchResult{Count: count, Transmitted: count - failed, Failed: failed}, nil
}

type manualFileContents struct {
	Datasets []manualDataset `toml:"datasets"`
}

type manualDataset struct {
	ID          string   `toml:"id"`
	Title       string   `toml:"title"`
	Description string   `toml:"description"`
	Comment     string   `toml:"comment"`
	Provenance  string   `toml:"provenance"`
	License     string   `toml:"license"`
	Tags        []string `toml:"tags"`
	SourceURL   string   `toml:"source_url"`
}

func (m manualDataset) toDataset() *dataset.Dataset {
	tags := make(dataset.Tags, 0, len(m.Tags))
	for _, t := range m.Tags {
		tags = append(tags, dataset.ParseTag(t))
	}
	return &dataset.Dataset{
		Title:       m.Title,
		Description: m.Description,
		Comment:     m.Comment,
		Provenance:  m.Provenance,
		License:     dataset.ParseLicense(m.License),
		Tags:        tags,
		SourceURL:   m.SourceURL,
	}
}
