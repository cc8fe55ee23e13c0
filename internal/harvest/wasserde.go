package harvest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/umwelt-info/harvester/internal/dataset"
	"github.com/umwelt-info/harvester/internal/errs"
	"github.com/umwelt-info/harvester/internal/hconfig"
	"github.com/umwelt-info/harvester/internal/httpclient"
)

// wasserDeHarvester harvests the WasserBLIcK/wasserblick.de single-call
// FilterElements endpoint, grounded on
// original_source/src/harvester/wasser_de.rs.
type wasserDeHarvester struct {
	source hconfig.Source
	client *httpclient.Client
	region *dataset.Region
}

func (h *wasserDeHarvester) Harvest(ctx context.Context, sink Sink) (BatchResult, error) {
	endpoint := strings.TrimRight(h.source.URL, "/") + "/rest/BaseController/FilterElements/V_REP_BASE_VALID"

	reqBody, err := json.Marshal(wasserDeRequest{Filter: struct{}{}})
	if err != nil {
		return BatchResult{}, err
	}

	body, err := h.client.Request(h.source.Name, func(httpClient *http.Client) ([]byte, error) {
		req, err := h.client.NewRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return h.client.Do(req)
	})
	if err != nil {
		return BatchResult{}, err
	}

	var resp wasserDeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return BatchResult{}, fmt.Errorf("parse WasserDE response: %w", err)
	}

	failed := 0
	for _, doc := range resp.Results {
		if err := h.translateAndWrite(sink, doc); err != nil {
			failed++
		}
	}

	count := len(resp.Results)
	return BatchResult{Count: count, Transmitted: count - failed, Failed: failed}, nil
}

func (h *wasserDeHarvester) translateAndWrite(sink Sink, doc wasserDeDocument) error {
	id := strconv.Itoa(doc.ID)
	if doc.Name == "" {
		return errs.Record(id, fmt.Errorf("document %d has no valid entry for NAME", doc.ID))
	}

	description := doc.TeaserText
	if description == "" {
		description = doc.AutoTeaserText
	}

	d := &dataset.Dataset{
		Title:       doc.Name,
		Description: description,
		License:     dataset.ParseLicense(doc.LicenseName),
		Tags:        doc.tags(),
		SourceURL:   h.source.URL,
		Region:      h.region,
	}

	return writeRecord(sink, id, d)
}

type wasserDeRequest struct {
	Filter struct{} `json:"filter"`
}

type wasserDeResponse struct {
	Results []wasserDeDocument `json:"V_REP_BASE_VALID"`
}

type wasserDeDocument struct {
	ID             int    `json:"ID"`
	Name           string `json:"NAME"`
	TeaserText     string `json:"TEASERTEXT"`
	AutoTeaserText string `json:"AUTOTEASERTEXT"`
	LicenseName    string `json:"LICENSE_NAME_KURZ"`
	Directive      string `json:"RICHTLINIE_IDS"`
}

// tags maps RICHTLINIE_IDS marker substrings to their EU water-directive
// tags (original_source's Document::tags).
func (d wasserDeDocument) tags() dataset.Tags {
	var tags dataset.Tags
	if strings.Contains(d.Directive, "1#") {
		tags = append(tags, dataset.Wrrl)
	}
	if strings.Contains(d.Directive, "2#") {
		tags = append(tags, dataset.HwrmRl)
	}
	if strings.Contains(d.Directive, "3#") {
		tags = append(tags, dataset.MsrRl)
	}
	if strings.Contains(d.Directive, "4#") {
		tags = append(tags, dataset.BgRl)
	}
	return tags
}
