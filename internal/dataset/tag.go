package dataset

import "strings"

// Tag is a tagged enumeration of the EU water-directive tags the WasserDE
// harvester assigns, plus a free-form Other(string) for anything else.
type Tag struct {
	kind  tagKind
	other string
}

type tagKind uint8

const (
	tagOther tagKind = iota
	tagWrrl
	tagHwrmRl
	tagMsrRl
	tagBgRl
)

var (
	Wrrl   = Tag{kind: tagWrrl}
	HwrmRl = Tag{kind: tagHwrmRl}
	MsrRl  = Tag{kind: tagMsrRl}
	BgRl   = Tag{kind: tagBgRl}
)

// OtherTag wraps a free-form tag string.
func OtherTag(s string) Tag {
	return Tag{kind: tagOther, other: s}
}

// ParseTag maps a tag token to its known variant by either acronym or any
// of its long-form synonyms; anything else becomes Other(s).
func ParseTag(s string) Tag {
	for _, known := range []Tag{Wrrl, HwrmRl, MsrRl, BgRl} {
		for _, tok := range known.Tokens() {
			if strings.EqualFold(tok, s) {
				return known
			}
		}
	}
	return OtherTag(s)
}

func (t Tag) String() string {
	switch t.kind {
	case tagWrrl:
		return "WRRL"
	case tagHwrmRl:
		return "HWRM-RL"
	case tagMsrRl:
		return "MSR-RL"
	case tagBgRl:
		return "BG-RL"
	default:
		return t.other
	}
}

// Tokens returns the indexing tokens for this tag: the acronym followed by
// its long-form synonyms. Grounded on original_source/src/dataset/tag.rs.
func (t Tag) Tokens() []string {
	switch t.kind {
	case tagWrrl:
		return []string{"WRRL", "Wasserrahmenrichtlinie", "Wasserrahmen-Richtlinie"}
	case tagHwrmRl:
		return []string{"HWRM-RL", "Hochwasserrisikomanagement-Richtlinie", "Hochwasserrisikomanagementrichtlinie"}
	case tagMsrRl:
		return []string{"MSR-RL", "Meeresstrategie-Rahmenrichtlinie", "Meeresstrategierahmenrichtlinie"}
	case tagBgRl:
		return []string{"BG-RL", "Badegewässer-Richtlinie", "Badegewässerrichtlinie"}
	default:
		return []string{t.other}
	}
}

func (t Tag) Equal(other Tag) bool {
	return t.kind == other.kind && t.other == other.other
}

// Tags is an ordered sequence of Tag with join/token helpers.
type Tags []Tag

// JoinTokens joins the indexing tokens of every tag with sep, in order,
// matching [Wrrl, HwrmRl].join_tokens(", ") from spec.md §8.
func (ts Tags) JoinTokens(sep string) string {
	var all []string
	for _, t := range ts {
		all = append(all, t.Tokens()...)
	}
	return strings.Join(all, sep)
}
