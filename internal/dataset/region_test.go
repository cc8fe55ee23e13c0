package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeResolver struct {
	byName map[string]uint64
	byID   map[uint64]string
}

func (f fakeResolver) Match(name string) (uint64, bool) {
	id, ok := f.byName[name]
	return id, ok
}

func (f fakeResolver) Resolve(id uint64) string {
	return f.byID[id]
}

func TestParseRegionResolved(t *testing.T) {
	resolver := fakeResolver{byName: map[string]uint64{"Bayern": 2951839}, byID: map[uint64]string{2951839: "Bayern"}}
	r := ParseRegion("Bayern", resolver)
	id, ok := r.GeoNameID()
	assert.True(t, ok)
	assert.Equal(t, uint64(2951839), id)
	assert.Equal(t, "Bayern", r.Display(resolver))
}

func TestParseRegionSoftFailsToOther(t *testing.T) {
	r := ParseRegion("Nirgendwo", nil)
	assert.False(t, r.IsGeoName())
	assert.Equal(t, "Nirgendwo", r.Display(nil))

	_, ok := r.URL()
	assert.False(t, ok)
}

func TestRegionDisplayFallsBackOnMissResolve(t *testing.T) {
	r := GeoNameRegion(42)
	assert.Equal(t, "GeoNames/42", r.Display(nil))
	assert.Equal(t, "GeoNames/42", r.Display(fakeResolver{}))
}

func TestRegionURL(t *testing.T) {
	r := GeoNameRegion(2951839)
	url, ok := r.URL()
	assert.True(t, ok)
	assert.Equal(t, "https://www.geonames.org/2951839/", url)
}

func TestRegionEqual(t *testing.T) {
	assert.True(t, GeoNameRegion(1).Equal(GeoNameRegion(1)))
	assert.False(t, GeoNameRegion(1).Equal(GeoNameRegion(2)))
	assert.True(t, OtherRegion("x").Equal(OtherRegion("x")))
	assert.False(t, OtherRegion("x").Equal(GeoNameRegion(1)))
}
