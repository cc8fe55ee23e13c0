package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/umwelt-info/harvester/internal/dataset"
	"github.com/umwelt-info/harvester/internal/hconfig"
	"github.com/umwelt-info/harvester/internal/httpclient"
)

// smartFinderHarvester harvests a Solr-backed SmartFinder "select"
// endpoint, grounded on original_source/src/harvester/smart_finder.rs.
type smartFinderHarvester struct {
	source hconfig.Source
	client *httpclient.Client
	region *dataset.Region
}

func (h *smartFinderHarvester) Harvest(ctx context.Context, sink Sink) (BatchResult, error) {
	rows := h.source.BatchSize

	fetch := func(ctx context.Context, start int) (int, int, int, error) {
		return h.fetchPage(ctx, sink, rows, start)
	}

	return paginate(ctx, h.source.Concurrency, rows, 0, func(total int) []int {
		requests := ceilDiv(total, rows)
		starts := make([]int, 0, max(requests-1, 0))
		for req := 1; req < requests; req++ {
			starts = append(starts, req*rows)
		}
		return starts
	}, fetch)
}

func (h *smartFinderHarvester) fetchPage(ctx context.Context, sink Sink, rows, start int) (int, int, int, error) {
	key := fmt.Sprintf("%s-%d", h.source.Name, start)
	body, err := h.client.Request(key, func(httpClient *http.Client) ([]byte, error) {
		u, err := url.Parse(h.source.URL)
		if err != nil {
			return nil, err
		}
		q := u.Query()
		q.Set("q", "*")
		q.Set("rows", strconv.Itoa(rows))
		q.Set("start", strconv.Itoa(start))
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

	var resp smartFinderSelectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, 0, 0, fmt.Errorf("parse SmartFinder response: %w", err)
	}

	failed := 0
	for _, doc := range resp.Response.Docs {
		d := &dataset.Dataset{
			Title:       doc.Title,
			Description: doc.Description,
			License:     dataset.Unknown,
			SourceURL:   h.source.ResolvedSourceURL(doc.ID),
			Region:      h.region,
		}
		if err := writeRecord(sink, doc.ID, d); err != nil {
			failed++
		}
	}

	return resp.Response.NumFound, len(resp.Response.Docs), failed, nil
}

type smartFinderSelectResponse struct {
	Response smartFinderResults `json:"response"`
}

type smartFinderResults struct {
	NumFound int                  `json:"numFound"`
	Docs     []smartFinderDocument `json:"docs"`
}

type smartFinderDocument struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}
