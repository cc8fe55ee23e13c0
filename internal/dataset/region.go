package dataset

import "fmt"

// GeoResolver resolves free-form place names to GeoNames ids and back. It
// is satisfied by internal/geonames.Index; kept as a narrow interface here
// so this package never imports the search stack. Both operations fail
// soft (spec.md §4.6, §9): a missing resolver or index must never abort
// normalization.
type GeoResolver interface {
	Match(name string) (id uint64, ok bool)
	Resolve(id uint64) string
}

// Region is either a resolved GeoNames id or a free-form place name that
// could not be matched.
type Region struct {
	geoName  uint64
	isGeo    bool
	other    string
}

func GeoNameRegion(id uint64) Region {
	return Region{geoName: id, isGeo: true}
}

func OtherRegion(s string) Region {
	return Region{other: s}
}

// ParseRegion looks up name in resolver; a nil resolver or a miss both
// fall back to Other(name), matching the soft-failure contract.
func ParseRegion(name string, resolver GeoResolver) Region {
	if resolver != nil {
		if id, ok := resolver.Match(name); ok {
			return GeoNameRegion(id)
		}
	}
	return OtherRegion(name)
}

func (r Region) IsGeoName() bool { return r.isGeo }
func (r Region) GeoNameID() (uint64, bool) {
	return r.geoName, r.isGeo
}

// URL is the geonames.org link for GeoName regions, and absent otherwise.
func (r Region) URL() (string, bool) {
	if !r.isGeo {
		return "", false
	}
	return fmt.Sprintf("https://www.geonames.org/%d/", r.geoName), true
}

// Display resolves a GeoName id via resolver; resolver failure (nil or
// lookup error) degrades to a placeholder, never an error.
func (r Region) Display(resolver GeoResolver) string {
	if !r.isGeo {
		return r.other
	}
	if resolver != nil {
		if name := resolver.Resolve(r.geoName); name != "" {
			return name
		}
	}
	return fmt.Sprintf("GeoNames/%d", r.geoName)
}

func (r Region) Equal(other Region) bool {
	return r.isGeo == other.isGeo && r.geoName == other.geoName && r.other == other.other
}
