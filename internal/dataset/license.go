package dataset

import "strings"

// License is a tagged enumeration of the open-data licenses the harvested
// catalogues use. Unknown upstream strings are kept verbatim as Other so
// that a future alias can be added without losing information.
type License struct {
	kind licenseKind
	// other holds the trimmed upstream string when kind == licenseOther.
	other string
}

type licenseKind uint8

const (
	licenseUnknown licenseKind = iota
	licenseOther
	licenseDlDeBy20
	licenseDlDeZero20
	licenseCcBy40
	licenseGeoNutz20130319
	licenseDorisBfs
	licenseOfficialWork
)

var (
	Unknown          = License{kind: licenseUnknown}
	DlDeBy20         = License{kind: licenseDlDeBy20}
	DlDeZero20       = License{kind: licenseDlDeZero20}
	CcBy40           = License{kind: licenseCcBy40}
	GeoNutz20130319  = License{kind: licenseGeoNutz20130319}
	DorisBfs         = License{kind: licenseDorisBfs}
	OfficialWork     = License{kind: licenseOfficialWork}
)

// OtherLicense returns the Other(s) variant with s trimmed.
func OtherLicense(s string) License {
	return License{kind: licenseOther, other: strings.TrimSpace(s)}
}

// licenseAliases is the case-sensitive dictionary of known upstream
// strings. Grounded on original_source/src/dataset/license.rs; the
// dl-zero/geonutz/official-work aliases are the ones
// spec.md §3/§8 name beyond that captured snapshot.
var licenseAliases = map[string]License{
	"dl-by-de/2.0": DlDeBy20,
	"dl-de-by-2.0": DlDeBy20,
	"http://dcat-ap.de/def/licenses/dl-by-de/2.0": DlDeBy20,
	"http://dcat-ap.de/def/licenses/dl-by-de/2_0": DlDeBy20,

	"dl-zero-de/2.0": DlDeZero20,
	"dl-de-zero-2.0": DlDeZero20,
	"http://dcat-ap.de/def/licenses/dl-zero-de/2.0": DlDeZero20,
	"http://dcat-ap.de/def/licenses/dl-zero-de/2_0": DlDeZero20,

	"cc-by/4.0": CcBy40,
	"http://dcat-ap.de/def/licenses/cc-by/4.0":  CcBy40,
	"http://dcat-ap.de/def/licenses/cc-by/4_0":  CcBy40,
	"http://dcat-ap.de/def/licenses/CC BY 4.0":  CcBy40,
	"https://creativecommons.org/licenses/by/4.0/": CcBy40,
	"CC-BY-4.0": CcBy40,

	"geonutzv-de/2013-03-19": GeoNutz20130319,
	"GeoNutzV":               GeoNutz20130319,

	"amtliches-werk": OfficialWork,
}

// ParseLicense maps an upstream license string to a License. Empty input
// is Unknown; unmapped input is Other(s) with s trimmed. Matching is
// case-sensitive, per spec.md §3.
func ParseLicense(s string) License {
	if strings.TrimSpace(s) == "" {
		return Unknown
	}
	if l, ok := licenseAliases[s]; ok {
		return l
	}
	return OtherLicense(s)
}

// ParseLicenseOpt is ParseLicense for an optional upstream value; a missing
// value is Unknown.
func ParseLicenseOpt(s *string) License {
	if s == nil {
		return Unknown
	}
	return ParseLicense(*s)
}

func (l License) String() string {
	switch l.kind {
	case licenseOther:
		return l.other
	case licenseDlDeBy20:
		return "dl-by-de/2.0"
	case licenseDlDeZero20:
		return "dl-zero-de/2.0"
	case licenseCcBy40:
		return "cc-by/4.0"
	case licenseGeoNutz20130319:
		return "geonutzv-de/2013-03-19"
	case licenseDorisBfs:
		return "doris-bfs"
	case licenseOfficialWork:
		return "amtliches-werk"
	default:
		return "unbekannt"
	}
}

// URL returns the canonical URL for known variants, and "", false for
// Unknown/Other.
func (l License) URL() (string, bool) {
	switch l.kind {
	case licenseDlDeBy20:
		return "https://www.govdata.de/dl-de/by-2-0", true
	case licenseDlDeZero20:
		return "https://www.govdata.de/dl-de/zero-2-0", true
	case licenseCcBy40:
		return "http://creativecommons.org/licenses/by/4.0/", true
	case licenseGeoNutz20130319:
		return "https://www.geodaten.bayern.de/docs/nutzungsbedingungen.pdf", true
	case licenseDorisBfs:
		return "https://doris.bfs.de/jspui/impressum/lizenz.html", true
	case licenseOfficialWork:
		return "https://www.gesetze-im-internet.de/urhg/__5.html", true
	default:
		return "", false
	}
}

// ID is the canonical identifier used when encoding/comparing licenses
// (distinct from String, which is the upstream-facing alias string).
func (l License) ID() string {
	switch l.kind {
	case licenseOther:
		return "other:" + l.other
	case licenseDlDeBy20:
		return "DlDeBy20"
	case licenseDlDeZero20:
		return "DlDeZero20"
	case licenseCcBy40:
		return "CcBy40"
	case licenseGeoNutz20130319:
		return "GeoNutz20130319"
	case licenseDorisBfs:
		return "DorisBfs"
	case licenseOfficialWork:
		return "OfficialWork"
	default:
		return "Unknown"
	}
}

func (l License) Equal(other License) bool {
	return l.kind == other.kind && l.other == other.other
}
