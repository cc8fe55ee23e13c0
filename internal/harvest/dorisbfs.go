package harvest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/umwelt-info/harvester/internal/dataset"
	"github.com/umwelt-info/harvester/internal/errs"
	"github.com/umwelt-info/harvester/internal/hconfig"
	"github.com/umwelt-info/harvester/internal/httpclient"
)

// dorisBfsHarvester scrapes the BfS DORIS DSpace browse/detail HTML pages,
// grounded on original_source/src/harvester/doris_bfs.rs.
type dorisBfsHarvester struct {
	source hconfig.Source
	client *httpclient.Client
	region *dataset.Region
}

var dorisBfsRangeRegex = regexp.MustCompile(`Anzeige der Treffer (\d+) bis (\d+) von (\d+)`)

func (h *dorisBfsHarvester) Harvest(ctx context.Context, sink Sink) (BatchResult, error) {
	rpp := h.source.BatchSize

	fetch := func(ctx context.Context, offset int) (int, int, int, error) {
		return h.fetchBrowsePage(ctx, sink, rpp, offset)
	}

	return paginate(ctx, h.source.Concurrency, rpp, 0, func(total int) []int {
		requests := ceilDiv(total, rpp)
		starts := make([]int, 0, max(requests-1, 0))
		for req := 1; req < requests; req++ {
			starts = append(starts, req*rpp)
		}
		return starts
	}, fetch)
}

func (h *dorisBfsHarvester) fetchBrowsePage(ctx context.Context, sink Sink, rpp, offset int) (int, int, int, error) {
	endpoint := strings.TrimRight(h.source.URL, "/") + "/jspui/browse"

	key := fmt.Sprintf("%s-browse-%d", h.source.Name, offset)
	body, err := h.client.Request(key, func(httpClient *http.Client) ([]byte, error) {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, err
		}
		q := u.Query()
		q.Set("rpp", strconv.Itoa(rpp))
		q.Set("offset", strconv.Itoa(offset))
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

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return 0, 0, 0, fmt.Errorf("parse DORIS-BFS browse page: %w", err)
	}

	count, err := parseDorisBfsCount(doc)
	if err != nil {
		return 0, 0, 0, err
	}
	handles := parseDorisBfsHandles(doc)
	if len(handles) == 0 {
		return 0, 0, 0, fmt.Errorf("could not parse handles at offset %d", offset)
	}

	failed := 0
	for _, handle := range handles {
		if err := h.fetchDetail(ctx, sink, handle); err != nil {
			failed++
		}
	}

	return count, len(handles), failed, nil
}

func parseDorisBfsCount(doc *goquery.Document) (int, error) {
	text := doc.Find("div.browse_range").First().Text()
	m := dorisBfsRangeRegex.FindStringSubmatch(text)
	if m == nil {
		return 0, fmt.Errorf("could not parse number of documents")
	}
	count, err := strconv.Atoi(m[3])
	if err != nil {
		return 0, fmt.Errorf("could not parse number of documents: %w", err)
	}
	return count, nil
}

func parseDorisBfsHandles(doc *goquery.Document) []string {
	var handles []string
	doc.Find(`td[headers="t2"] > a`).Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			handles = append(handles, href)
		}
	})
	return handles
}

func (h *dorisBfsHarvester) fetchDetail(ctx context.Context, sink Sink, handle string) error {
	base, err := url.Parse(h.source.URL)
	if err != nil {
		return errs.Record(handle, err)
	}
	ref, err := url.Parse(handle)
	if err != nil {
		return errs.Record(handle, err)
	}
	full := base.ResolveReference(ref)

	last := handle
	if idx := strings.LastIndex(handle, "/"); idx >= 0 {
		last = handle[idx+1:]
	}

	key := fmt.Sprintf("%s-handle-%s", h.source.Name, last)
	body, err := h.client.Request(key, func(httpClient *http.Client) ([]byte, error) {
		req, err := h.client.NewRequest(ctx, http.MethodGet, full.String(), nil)
		if err != nil {
			return nil, err
		}
		return h.client.Do(req)
	})
	if err != nil {
		return errs.Record(handle, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return errs.Record(handle, fmt.Errorf("parse DORIS-BFS detail page: %w", err))
	}

	identifier, ok := findDorisBfsIdentifier(doc)
	if !ok {
		return errs.Record(handle, fmt.Errorf("missing identifier"))
	}
	title, ok := doc.Find(`head > meta[name="DC.title"]`).First().Attr("content")
	if !ok {
		return errs.Record(handle, fmt.Errorf("missing title"))
	}
	abstract, _ := doc.Find(`head > meta[name="DCTERMS.abstract"]`).First().Attr("content")

	d := &dataset.Dataset{
		Title:       title,
		Description: abstract,
		License:     dataset.DorisBfs,
		SourceURL:   full.String(),
		Region:      h.region,
	}

	return writeRecord(sink, identifier, d)
}

func findDorisBfsIdentifier(doc *goquery.Document) (string, bool) {
	found := ""
	doc.Find(`head > meta[name="DC.identifier"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		content, ok := s.Attr("content")
		if ok && strings.HasPrefix(content, "urn:") {
			found = content
			return false
		}
		return true
	})
	return found, found != ""
}
