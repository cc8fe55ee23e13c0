// Package server is the thin HTTP adapter spec.md §1 places out of scope
// for the core ("HTTP transport layer ... is a thin adapter over the
// core"): it only translates requests into calls against
// internal/search.Searcher and internal/stats.Store and serializes their
// results, grounded on the teacher's internal/api/rest.go handler/
// gorilla-mux idiom and original_source/src/server/{search,dataset,
// metrics}.rs's endpoint contract.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"golang.org/x/sync/semaphore"

	"github.com/umwelt-info/harvester/internal/dataset"
	"github.com/umwelt-info/harvester/internal/errs"
	"github.com/umwelt-info/harvester/internal/metricsstore"
	"github.com/umwelt-info/harvester/internal/search"
	"github.com/umwelt-info/harvester/internal/stats"
	"github.com/umwelt-info/harvester/internal/store"
	"github.com/umwelt-info/harvester/pkg/log"
)

const (
	defaultResultsPerPage = 10
	maxResultsPerPage     = 100
)

// Server holds the handles every request needs; it owns none of them
// (Searcher/Stats/Metrics lifecycles are managed by cmd/server).
type Server struct {
	searcher *search.Searcher
	root     *store.Root
	stats    *stats.Store
	metrics  *metricsstore.Store
	geo      dataset.GeoResolver
	limit    *semaphore.Weighted
}

// New builds a Server. requestLimit bounds in-flight requests, the Go
// analogue of the original's tower GlobalConcurrencyLimitLayer; geo may be
// nil (region names then fall back to their stored placeholder).
func New(searcher *search.Searcher, root *store.Root, statsStore *stats.Store, metricsStore *metricsstore.Store, geo dataset.GeoResolver, requestLimit int) *Server {
	return &Server{
		searcher: searcher,
		root:     root,
		stats:    statsStore,
		metrics:  metricsStore,
		geo:      geo,
		limit:    semaphore.NewWeighted(int64(requestLimit)),
	}
}

// Router builds the route table: "/search", "/dataset/{source}/{id}", and
// "/metrics", each wrapped by the concurrency-limit middleware.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.limitMiddleware)
	r.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	r.HandleFunc("/dataset/{source}/{id}", s.handleDataset).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	return r
}

// limitMiddleware sheds load once requestLimit in-flight requests are
// already being served, mirroring the original's LoadShedLayer +
// GlobalConcurrencyLimitLayer pair: acquiring without blocking, and
// responding 503 immediately rather than queuing.
func (s *Server) limitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limit.TryAcquire(1) {
			http.Error(w, "server busy", http.StatusServiceUnavailable)
			return
		}
		defer s.limit.Release(1)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	params, err := parseSearchParams(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.searcher.Search(r.Context(), params.query, params.provenanceRoot, params.licenseRoot, params.resultsPerPage, (params.page-1)*params.resultsPerPage)
	if err != nil {
		writeError(w, errs.Internal(err))
		return
	}

	writeJSON(w, http.StatusOK, searchResponseDTO{
		Query:   params.query,
		Page:    params.page,
		Pages:   pageCount(result.Total, params.resultsPerPage),
		Count:   result.Total,
		Terms:   result.Terms,
		Results: toHitDTOs(result.Hits),
		Facets: facetsDTO{
			Provenance: result.Facets.Provenance,
			License:    result.Facets.License,
		},
	})
}

func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	source, id := vars["source"], vars["id"]

	d, err := s.root.Load(source, id)
	if err != nil {
		writeError(w, errs.Internal(err))
		return
	}

	var accesses uint64
	if s.stats != nil {
		accesses = s.stats.RecordAccess(source, id)
	}

	writeJSON(w, http.StatusOK, datasetResponseDTO{
		Source:   source,
		ID:       id,
		Dataset:  toDatasetDTO(d, s.geo),
		Accesses: accesses,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeJSON(w, http.StatusOK, metricsResponseDTO{})
		return
	}
	writeJSON(w, http.StatusOK, metricsResponseDTO{
		License: s.metrics.LicenseHistogram(),
		Tags:    s.metrics.TagHistogram(),
	})
}

type searchParams struct {
	query          string
	provenanceRoot string
	licenseRoot    string
	page           int
	resultsPerPage int
}

func parseSearchParams(q map[string][]string) (searchParams, error) {
	p := searchParams{query: "*", page: 1, resultsPerPage: defaultResultsPerPage}

	if v := first(q, "query"); v != "" {
		p.query = v
	}
	// Empty query params default to the unrestricted facet root "/"
	// (GLOSSARY "Facet root"), matching Searcher.Search's own default so
	// the DTO echoes the root actually applied rather than "".
	p.provenanceRoot = search.NormalizeRoot(first(q, "provenances_root"))
	p.licenseRoot = search.NormalizeRoot(first(q, "licenses_root"))

	if v := first(q, "page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return p, errs.BadRequest("page must be a positive integer")
		}
		p.page = n
	}
	if v := first(q, "results_per_page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return p, errs.BadRequest("results_per_page must be a positive integer")
		}
		p.resultsPerPage = n
	}

	if p.page == 0 || p.resultsPerPage == 0 {
		return p, errs.BadRequest("page and results_per_page must not be zero")
	}
	if p.resultsPerPage > maxResultsPerPage {
		return p, errs.BadRequest("results_per_page must not be larger than %d", maxResultsPerPage)
	}
	return p, nil
}

func first(q map[string][]string, key string) string {
	if vs, ok := q[key]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func pageCount(total uint64, perPage int) int {
	if perPage == 0 {
		return 0
	}
	return int((total + uint64(perPage) - 1) / uint64(perPage))
}

// writeError implements spec.md §7's server-facing split: BadRequestError
// is a literal 400, everything else is a stringified 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := err.Error()
	var badRequest *errs.BadRequestError
	if errors.As(err, &badRequest) {
		status = http.StatusBadRequest
		message = badRequest.Reason
	}
	log.Warnf("request failed: %v", err)
	writeJSON(w, status, errorResponseDTO{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warnf("failed to encode response: %v", err)
	}
}

// Flush persists stats and metrics synchronously; cmd/server calls this on
// shutdown in addition to the periodic background flush.
func (s *Server) Flush(_ context.Context) error {
	if s.stats != nil {
		if err := s.stats.Flush(); err != nil {
			return err
		}
	}
	if s.metrics != nil {
		return s.metrics.Flush()
	}
	return nil
}
