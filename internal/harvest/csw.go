package harvest

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"

	"github.com/umwelt-info/harvester/internal/dataset"
	"github.com/umwelt-info/harvester/internal/hconfig"
	"github.com/umwelt-info/harvester/internal/httpclient"
)

// cswHarvester harvests an OGC CSW GetRecords endpoint, grounded on
// original_source/src/harvester/csw.rs. Its record translation is shared
// with geoNetworkQHarvester (spec.md §4.3: "same as CSW").
type cswHarvester struct {
	source hconfig.Source
	client *httpclient.Client
	region *dataset.Region
}

func (h *cswHarvester) Harvest(ctx context.Context, sink Sink) (BatchResult, error) {
	maxRecords := h.source.BatchSize

	fetch := func(ctx context.Context, startPos int) (int, int, int, error) {
		return fetchCswPage(ctx, h.client, h.source, sink, maxRecords, startPos, h.region)
	}

	return paginate(ctx, h.source.Concurrency, maxRecords, 1, func(total int) []int {
		requests := ceilDiv(total, maxRecords)
		starts := make([]int, 0, max(requests-1, 0))
		for req := 1; req < requests; req++ {
			starts = append(starts, 1+req*maxRecords)
		}
		return starts
	}, fetch)
}

func fetchCswPage(ctx context.Context, client *httpclient.Client, source hconfig.Source, sink Sink, maxRecords, startPos int, region *dataset.Region) (int, int, int, error) {
	requestBody := renderGetRecordsRequest(maxRecords, startPos)

	key := fmt.Sprintf("%s-%d", source.Name, startPos)
	body, err := client.Request(key, func(httpClient *http.Client) ([]byte, error) {
		req, err := client.NewRequest(ctx, http.MethodPost, source.URL, strings.NewReader(requestBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/xml")
		return client.Do(req)
	})
	if err != nil {
		return 0, 0, 0, err
	}

	var resp cswGetRecordsResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return 0, 0, 0, fmt.Errorf("parse CSW response: %w", err)
	}

	failed := 0
	for _, record := range resp.Results.Records {
		id := record.FileIdentifier.Text
		d := translateCswRecord(source, record)
		d.Region = region
		if err := writeRecord(sink, id, d); err != nil {
			failed++
		}
	}

	return resp.Results.NumRecordsMatched, len(resp.Results.Records), failed, nil
}

func translateCswRecord(source hconfig.Source, record cswRecord) *dataset.Dataset {
	ident := record.IdentificationInfo()
	id := record.FileIdentifier.Text

	return &dataset.Dataset{
		Title:       ident.Citation.Title.Text,
		Description: ident.Abstract.Text,
		License:     dataset.ParseLicense(ident.license()),
		SourceURL:   strings.ReplaceAll(source.ResolvedSourceURL(id), "{{id}}", id),
	}
}

// renderGetRecordsRequest builds the CSW GetRecords request body. The
// teacher's template engine (pongo2/html-template) has no XML-escaping
// need here since maxRecords/startPos are plain integers; grounded on
// original_source's csw_get_records.xml askama template shape.
func renderGetRecordsRequest(maxRecords, startPos int) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<csw:GetRecords xmlns:csw="http://www.opengis.net/cat/csw/2.0.2" service="CSW" version="2.0.2"
  resultType="results" outputSchema="http://www.isotc211.org/2005/gmd"
  maxRecords="%d" startPosition="%d">
  <csw:Query typeNames="gmd:MD_Metadata">
    <csw:ElementSetName>full</csw:ElementSetName>
  </csw:Query>
</csw:GetRecords>`, maxRecords, startPos)
}

type cswGetRecordsResponse struct {
	Results cswSearchResults `xml:"SearchResults"`
}

type cswSearchResults struct {
	NumRecordsMatched int          `xml:"numberOfRecordsMatched,attr"`
	Records           []cswRecord  `xml:"MD_Metadata"`
}

type cswRecord struct {
	FileIdentifier       cswCharacterString   `xml:"fileIdentifier>CharacterString"`
	DataIdentification   *cswIdentification   `xml:"identificationInfo>MD_DataIdentification"`
	ServiceIdentification *cswIdentification  `xml:"identificationInfo>SV_ServiceIdentification"`
}

// IdentificationInfo picks whichever of the two identification variants
// the record carried (original_source's IdentificationInfo enum).
func (r cswRecord) IdentificationInfo() cswIdentification {
	if r.DataIdentification != nil {
		return *r.DataIdentification
	}
	if r.ServiceIdentification != nil {
		return *r.ServiceIdentification
	}
	return cswIdentification{}
}

type cswCharacterString struct {
	Text string `xml:"CharacterString"`
}

type cswIdentification struct {
	Citation            cswCitationInner         `xml:"citation>CI_Citation"`
	Abstract            cswAbstract              `xml:"abstract"`
	ResourceConstraints []cswResourceConstraints `xml:"resourceConstraints"`
}

type cswCitationInner struct {
	Title cswAbstract `xml:"title"`
}

type cswAbstract struct {
	Text string `xml:"CharacterString"`
}

type cswResourceConstraints struct {
	LegalConstraints *cswLegalConstraints `xml:"MD_LegalConstraints"`
}

type cswLegalConstraints struct {
	UseConstraints   []cswUseConstraints   `xml:"useConstraints"`
	OtherConstraints []cswOtherConstraints `xml:"otherConstraints"`
}

type cswUseConstraints struct {
	RestrictionCode cswRestrictionCode `xml:"MD_RestrictionCode"`
}

type cswRestrictionCode struct {
	Value string `xml:"codeListValue,attr"`
}

type cswOtherConstraints struct {
	Text string `xml:"CharacterString"`
}

type cswLicenseBlob struct {
	ID string `json:"id"`
}

// license implements spec.md §4.3's CSW license extraction: the first
// otherRestrictions useConstraints block, then the first otherConstraints
// CharacterString that parses as a JSON object carrying "id".
func (ident cswIdentification) license() string {
	for _, rc := range ident.ResourceConstraints {
		if rc.LegalConstraints == nil {
			continue
		}
		isOtherRestrictions := false
		for _, uc := range rc.LegalConstraints.UseConstraints {
			if uc.RestrictionCode.Value == "otherRestrictions" {
				isOtherRestrictions = true
				break
			}
		}
		if !isOtherRestrictions {
			continue
		}
		for _, oc := range rc.LegalConstraints.OtherConstraints {
			var blob cswLicenseBlob
			if err := json.Unmarshal([]byte(oc.Text), &blob); err == nil && blob.ID != "" {
				return blob.ID
			}
		}
	}
	return ""
}
