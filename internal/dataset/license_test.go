package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLicenseKnownAliases(t *testing.T) {
	cases := map[string]License{
		"dl-by-de/2.0":           DlDeBy20,
		"dl-zero-de/2.0":         DlDeZero20,
		"cc-by/4.0":              CcBy40,
		"CC-BY-4.0":              CcBy40,
		"geonutzv-de/2013-03-19": GeoNutz20130319,
		"GeoNutzV":               GeoNutz20130319,
		"amtliches-werk":         OfficialWork,
	}
	for in, want := range cases {
		assert.True(t, ParseLicense(in).Equal(want), "ParseLicense(%q)", in)
	}
}

func TestParseLicenseEmptyIsUnknown(t *testing.T) {
	assert.True(t, ParseLicense("").Equal(Unknown))
	assert.True(t, ParseLicense("   ").Equal(Unknown))
}

func TestParseLicenseUnmappedIsOther(t *testing.T) {
	l := ParseLicense("  some-weird-license  ")
	assert.False(t, l.Equal(Unknown))
	assert.Equal(t, "some-weird-license", l.String())
}

func TestParseLicenseCaseSensitive(t *testing.T) {
	l := ParseLicense("DL-BY-DE/2.0")
	assert.Equal(t, "DL-BY-DE/2.0", l.String())
	assert.False(t, l.Equal(DlDeBy20))
}

func TestLicenseURL(t *testing.T) {
	url, ok := DlDeBy20.URL()
	assert.True(t, ok)
	assert.NotEmpty(t, url)

	_, ok = Unknown.URL()
	assert.False(t, ok)

	_, ok = OtherLicense("x").URL()
	assert.False(t, ok)
}

func TestLicenseIDRoundTrip(t *testing.T) {
	for _, l := range []License{Unknown, DlDeBy20, DlDeZero20, CcBy40, GeoNutz20130319, DorisBfs, OfficialWork, OtherLicense("custom")} {
		assert.True(t, licenseFromID(l.ID()).Equal(l), "ID round-trip for %q", l.String())
	}
}
