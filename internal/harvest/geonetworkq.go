package harvest

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/umwelt-info/harvester/internal/dataset"
	"github.com/umwelt-info/harvester/internal/hconfig"
	"github.com/umwelt-info/harvester/internal/httpclient"
)

// geoNetworkQHarvester harvests a GeoNetwork "q" search endpoint. Its GET
// request shape and 1-based inclusive paging are GeoNetwork-specific, but
// it returns the same ISO 19115/MD_Metadata payload CSW does, so record
// translation is reused verbatim (spec.md §4.3: "same as CSW (reuses CSW
// record mapping)"), grounded on
// original_source/src/harvester/geo_network_q.rs's SearchParams and
// fetch_datasets.
type geoNetworkQHarvester struct {
	source hconfig.Source
	client *httpclient.Client
	region *dataset.Region
}

func (h *geoNetworkQHarvester) Harvest(ctx context.Context, sink Sink) (BatchResult, error) {
	pageSize := h.source.BatchSize

	fetch := func(ctx context.Context, from int) (int, int, int, error) {
		return h.fetchPage(ctx, sink, from, pageSize)
	}

	return paginate(ctx, h.source.Concurrency, pageSize, 1, func(total int) []int {
		requests := ceilDiv(total, pageSize)
		starts := make([]int, 0, max(requests-1, 0))
		for req := 1; req < requests; req++ {
			starts = append(starts, 1+req*pageSize)
		}
		return starts
	}, fetch)
}

func (h *geoNetworkQHarvester) fetchPage(ctx context.Context, sink Sink, from, pageSize int) (int, int, int, error) {
	key := fmt.Sprintf("%s-%d", h.source.Name, from)
	body, err := h.client.Request(key, func(httpClient *http.Client) ([]byte, error) {
		u, err := url.Parse(h.source.URL)
		if err != nil {
			return nil, err
		}
		q := u.Query()
		q.Set("fast", "false")
		q.Set("from", strconv.Itoa(from))
		q.Set("to", strconv.Itoa(from+pageSize-1))
		// buildSummary is only requested on the first page, mirroring
		// geo_network_q.rs's harvest()/fetch_datasets split (summary: true
		// for from==1, false for every subsequent page).
		q.Set("buildSummary", strconv.FormatBool(from == 1))
		if h.source.Filter != "" {
			q.Set("topicCat", h.source.Filter)
		}
		u.RawQuery = q.Encode()

		req, err := h.client.NewRequest(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		return h.client.Do(req)
	})
	if err != nil {
		return 0, 0, 0, err
	}

	var resp cswGetRecordsResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return 0, 0, 0, fmt.Errorf("parse GeoNetwork response: %w", err)
	}

	failed := 0
	for _, record := range resp.Results.Records {
		id := record.FileIdentifier.Text
		d := translateCswRecord(h.source, record)
		d.Region = h.region
		if err := writeRecord(sink, id, d); err != nil {
			failed++
		}
	}

	return resp.Results.NumRecordsMatched, len(resp.Results.Records), failed, nil
}
