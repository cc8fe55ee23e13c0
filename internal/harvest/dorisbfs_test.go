package harvest

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDorisBfsCount(t *testing.T) {
	html := `<html><body><div class="browse_range">Anzeige der Treffer 1 bis 20 von 134</div></body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)

	count, err := parseDorisBfsCount(doc)
	require.NoError(t, err)
	assert.Equal(t, 134, count)
}

func TestParseDorisBfsCountMissing(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<html><body></body></html>`))
	require.NoError(t, err)
	_, err = parseDorisBfsCount(doc)
	assert.Error(t, err)
}

func TestParseDorisBfsHandles(t *testing.T) {
	html := `<table>
      <tr><td headers="t2"><a href="/jspui/handle/123/1">a</a></td></tr>
      <tr><td headers="t2"><a href="/jspui/handle/123/2">b</a></td></tr>
    </table>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)

	handles := parseDorisBfsHandles(doc)
	assert.Equal(t, []string{"/jspui/handle/123/1", "/jspui/handle/123/2"}, handles)
}

func TestFindDorisBfsIdentifier(t *testing.T) {
	html := `<html><head>
      <meta name="DC.identifier" content="some-other-id">
      <meta name="DC.identifier" content="urn:nbn:de:example">
    </head></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)

	id, ok := findDorisBfsIdentifier(doc)
	assert.True(t, ok)
	assert.Equal(t, "urn:nbn:de:example", id)
}
