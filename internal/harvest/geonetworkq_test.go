package harvest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umwelt-info/harvester/internal/hconfig"
	"github.com/umwelt-info/harvester/internal/httpclient"
)

// geoNetworkQFixture renders the same MD_Metadata payload CSW uses, wrapped
// in the same GetRecordsResponse/SearchResults envelope the CSW response
// decoder reads.
func geoNetworkQFixture(ids []string, total int) string {
	records := ""
	for _, id := range ids {
		records += fmt.Sprintf(`<gmd:MD_Metadata>
  <gmd:fileIdentifier><gco:CharacterString>%s</gco:CharacterString></gmd:fileIdentifier>
  <gmd:identificationInfo><gmd:MD_DataIdentification>
    <gmd:citation><gmd:CI_Citation><gmd:title><gco:CharacterString>%s</gco:CharacterString></gmd:title></gmd:CI_Citation></gmd:citation>
    <gmd:abstract><gco:CharacterString></gco:CharacterString></gmd:abstract>
  </gmd:MD_DataIdentification></gmd:identificationInfo>
</gmd:MD_Metadata>`, id, id)
	}
	return fmt.Sprintf(`<csw:GetRecordsResponse><csw:SearchResults numberOfRecordsMatched="%d">%s</csw:SearchResults></csw:GetRecordsResponse>`, total, records)
}

// TestGeoNetworkQRequestShape grounds original_source/src/harvester/
// geo_network_q.rs's SearchParams: fast is always false, buildSummary is
// requested only on the first page, and topicCat is omitted unless the
// source has a filter.
func TestGeoNetworkQRequestShape(t *testing.T) {
	ids := []string{"a", "b", "c"}
	var gotFast, gotBuildSummary []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFast = append(gotFast, r.URL.Query().Get("fast"))
		gotBuildSummary = append(gotBuildSummary, r.URL.Query().Get("buildSummary"))
		assert.Empty(t, r.URL.Query().Get("topicCat"))

		from := r.URL.Query().Get("from")
		if from == "1" {
			_, _ = w.Write([]byte(geoNetworkQFixture(ids[:2], len(ids))))
			return
		}
		_, _ = w.Write([]byte(geoNetworkQFixture(ids[2:], len(ids))))
	}))
	defer server.Close()

	client, err := httpclient.New(t.TempDir(), httpclient.Live)
	require.NoError(t, err)

	source := hconfig.Source{Name: "fixture", Type: hconfig.GeoNetworkQ, URL: server.URL, BatchSize: 2, Concurrency: 1}
	h, err := New(source, client, nil)
	require.NoError(t, err)

	sink := newMemSink()
	result, err := h.Harvest(context.Background(), sink)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Count)
	assert.Len(t, sink.written, 3)

	for _, v := range gotFast {
		assert.Equal(t, "false", v)
	}
	require.Len(t, gotBuildSummary, 2)
	assert.Equal(t, "true", gotBuildSummary[0])
	assert.Equal(t, "false", gotBuildSummary[1])
}

func TestGeoNetworkQSetsFilterAsTopicCat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "inspireidentified", r.URL.Query().Get("topicCat"))
		_, _ = w.Write([]byte(geoNetworkQFixture([]string{"x"}, 1)))
	}))
	defer server.Close()

	client, err := httpclient.New(t.TempDir(), httpclient.Live)
	require.NoError(t, err)

	source := hconfig.Source{Name: "fixture", Type: hconfig.GeoNetworkQ, URL: server.URL, BatchSize: 10, Concurrency: 1, Filter: "inspireidentified"}
	h, err := New(source, client, nil)
	require.NoError(t, err)

	sink := newMemSink()
	_, err = h.Harvest(context.Background(), sink)
	require.NoError(t, err)
	assert.Len(t, sink.written, 1)
}
