package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/umwelt-info/harvester/internal/dataset"
	"github.com/umwelt-info/harvester/internal/hconfig"
	"github.com/umwelt-info/harvester/internal/httpclient"
)

// ckanResponseSchema is the structural shape package_search must honor
// before translateCkanPackage is allowed to touch it; CKAN instances are
// third-party operated and have been seen to return success:true bodies
// missing "result" entirely.
const ckanResponseSchema = `{
	"type": "object",
	"required": ["success"],
	"properties": {"success": {"type": "boolean"}},
	"oneOf": [
		{
			"properties": {"success": {"const": false}},
			"required": ["error"]
		},
		{
			"required": ["result"],
			"properties": {
				"success": {"const": true},
				"result": {
					"type": "object",
					"required": ["count", "results"],
					"properties": {
						"count": {"type": "integer"},
						"results": {"type": "array"}
					}
				}
			}
		}
	]
}`

var ckanSchema = sync.OnceValue(func() *jsonschema.Schema {
	sch, err := jsonschema.CompileString("ckan-package-search.json", ckanResponseSchema)
	if err != nil {
		panic(err)
	}
	return sch
})

// ckanHarvester harvests a CKAN catalogue's package_search API, grounded
// on original_source/src/harvester/ckan.rs.
type ckanHarvester struct {
	source hconfig.Source
	client *httpclient.Client
	region *dataset.Region
}

func (h *ckanHarvester) Harvest(ctx context.Context, sink Sink) (BatchResult, error) {
	rows := h.source.BatchSize

	fetch := func(ctx context.Context, fetchStart int) (int, int, int, error) {
		return h.fetchPage(ctx, sink, fetchStart, rows)
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

func (h *ckanHarvester) fetchPage(ctx context.Context, sink Sink, start, rows int) (int, int, int, error) {
	endpoint := h.source.URL + "/api/3/action/package_search"

	key := fmt.Sprintf("%s-%d", h.source.Name, start)
	body, err := h.client.Request(key, func(httpClient *http.Client) ([]byte, error) {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, err
		}
		q := u.Query()
		q.Set("start", strconv.Itoa(start))
		q.Set("rows", strconv.Itoa(rows))
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

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return 0, 0, 0, fmt.Errorf("parse CKAN response: %w", err)
	}
	if err := ckanSchema().Validate(raw); err != nil {
		return 0, 0, 0, fmt.Errorf("validate CKAN response: %w", err)
	}

	var resp ckanPackageSearch
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, 0, 0, fmt.Errorf("parse CKAN response: %w", err)
	}
	if !resp.Success {
		msg := "malformed response"
		if resp.Error != nil {
			msg = resp.Error.Message
		}
		return 0, 0, 0, fmt.Errorf("failed to fetch packages: %s", msg)
	}

	failed := 0
	for i := range resp.Result.Results {
		pkg := resp.Result.Results[i]
		d := translateCkanPackage(h.source, pkg)
		d.Region = h.region
		if err := writeRecord(sink, pkg.ID, d); err != nil {
			failed++
		}
	}

	return resp.Result.Count, len(resp.Result.Results), failed, nil
}

func translateCkanPackage(source hconfig.Source, pkg ckanPackage) *dataset.Dataset {
	return &dataset.Dataset{
		Title:       pkg.Title,
		Description: pkg.Notes,
		License:     dataset.ParseLicense(pkg.takeLicense()),
		SourceURL:   source.ResolvedSourceURL(pkg.Name),
	}
}

type ckanPackageSearch struct {
	Success bool             `json:"success"`
	Error   *ckanError       `json:"error"`
	Result  ckanSearchResult `json:"result"`
}

type ckanSearchResult struct {
	Count   int            `json:"count"`
	Results []ckanPackage  `json:"results"`
}

type ckanPackage struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Title     string         `json:"title"`
	Notes     string         `json:"notes"`
	LicenseID string         `json:"license_id"`
	Resources []ckanResource `json:"resources"`
}

type ckanResource struct {
	License string `json:"license"`
}

type ckanError struct {
	Message string `json:"message"`
}

// takeLicense applies the spec.md §4.3 CKAN tie-break: non-empty
// license_id wins; else a single resource's license; else a license
// shared by every resource; otherwise none.
func (p ckanPackage) takeLicense() string {
	if p.LicenseID != "" {
		return p.LicenseID
	}
	switch len(p.Resources) {
	case 0:
		return ""
	case 1:
		return p.Resources[0].License
	default:
		head := p.Resources[0].License
		for _, r := range p.Resources[1:] {
			if r.License != head {
				return ""
			}
		}
		return head
	}
}
