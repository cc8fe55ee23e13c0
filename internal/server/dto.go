package server

import (
	"github.com/umwelt-info/harvester/internal/dataset"
	"github.com/umwelt-info/harvester/internal/search"
)

// datasetDTO is the JSON presentation of a dataset.Dataset: the core type
// hides its enumerations behind accessor methods (spec.md §1 explicitly
// keeps presentation out of the core), so this package is where they get
// flattened into plain strings.
type datasetDTO struct {
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Comment     string      `json:"comment,omitempty"`
	Provenance  string      `json:"provenance,omitempty"`
	License     licenseDTO  `json:"license"`
	Contacts    []contactDTO `json:"contacts,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	Region      *regionDTO  `json:"region,omitempty"`
	Issued      *dateDTO    `json:"issued,omitempty"`
	LastChecked *dateDTO    `json:"last_checked,omitempty"`
	SourceURL   string      `json:"source_url,omitempty"`
	Resources   []resourceDTO `json:"resources,omitempty"`
}

type licenseDTO struct {
	ID  string `json:"id"`
	URL string `json:"url,omitempty"`
}

type contactDTO struct {
	Name   string   `json:"name"`
	Emails []string `json:"emails,omitempty"`
}

type regionDTO struct {
	GeoNameID *uint64 `json:"geoname_id,omitempty"`
	Name      string  `json:"name"`
	URL       string  `json:"url,omitempty"`
}

type dateDTO struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

type resourceDTO struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// toDatasetDTO flattens d for JSON responses; resolver degrades region
// names to a placeholder on lookup failure (spec.md §9 "soft failure of
// the geo resolver"), never erroring the request.
func toDatasetDTO(d *dataset.Dataset, resolver dataset.GeoResolver) datasetDTO {
	dto := datasetDTO{
		Title:       d.Title,
		Description: d.Description,
		Comment:     d.Comment,
		Provenance:  d.Provenance,
		License:     toLicenseDTO(d.License),
		SourceURL:   d.SourceURL,
	}
	for _, c := range d.Contacts {
		dto.Contacts = append(dto.Contacts, contactDTO{Name: c.Name, Emails: c.Emails})
	}
	for _, t := range d.Tags {
		dto.Tags = append(dto.Tags, t.String())
	}
	if d.Region != nil {
		r := toRegionDTO(*d.Region, resolver)
		dto.Region = &r
	}
	if d.Issued != nil {
		dto.Issued = toDateDTO(*d.Issued)
	}
	if d.LastChecked != nil {
		dto.LastChecked = toDateDTO(*d.LastChecked)
	}
	for _, r := range d.Resources {
		dto.Resources = append(dto.Resources, resourceDTO{Type: r.Type.String(), URL: r.URL})
	}
	return dto
}

func toLicenseDTO(l dataset.License) licenseDTO {
	dto := licenseDTO{ID: l.String()}
	if url, ok := l.URL(); ok {
		dto.URL = url
	}
	return dto
}

func toRegionDTO(r dataset.Region, resolver dataset.GeoResolver) regionDTO {
	dto := regionDTO{Name: r.Display(resolver)}
	if id, ok := r.GeoNameID(); ok {
		dto.GeoNameID = &id
	}
	if url, ok := r.URL(); ok {
		dto.URL = url
	}
	return dto
}

func toDateDTO(d dataset.Date) *dateDTO {
	return &dateDTO{Year: d.Year, Month: int(d.Month), Day: d.Day}
}

type hitDTO struct {
	Source string  `json:"source"`
	ID     string  `json:"id"`
	Score  float64 `json:"score"`
}

func toHitDTOs(hits []search.Hit) []hitDTO {
	out := make([]hitDTO, 0, len(hits))
	for _, h := range hits {
		out = append(out, hitDTO{Source: h.Source, ID: h.ID, Score: h.Score})
	}
	return out
}

type facetsDTO struct {
	Provenance map[string]int `json:"provenance"`
	License    map[string]int `json:"license"`
}

type searchResponseDTO struct {
	Query   string    `json:"query"`
	Page    int       `json:"page"`
	Pages   int       `json:"pages"`
	Count   uint64    `json:"count"`
	Terms   []string  `json:"terms,omitempty"`
	Results []hitDTO  `json:"results"`
	Facets  facetsDTO `json:"facets"`
}

type datasetResponseDTO struct {
	Source   string     `json:"source"`
	ID       string     `json:"id"`
	Dataset  datasetDTO `json:"dataset"`
	Accesses uint64     `json:"accesses"`
}

type metricsResponseDTO struct {
	License map[string]uint64 `json:"license,omitempty"`
	Tags    map[string]uint64 `json:"tags,omitempty"`
}

type errorResponseDTO struct {
	Error string `json:"error"`
}
