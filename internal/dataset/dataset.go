// Package dataset defines the normalized metadata record (spec.md §3) that
// every protocol harvester translates its upstream payload into, plus the
// tagged enumerations (License, Tag, Region, ResourceType) that make up its
// fields.
package dataset

import "time"

// Date is a calendar date with no time component, matching spec.md §3's
// issued/last_checked fields.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) IsZero() bool { return d == Date{} }

func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Dataset is the current on-disk schema: the union of every field spec.md
// §3 names. A missing Title fails translation of the record it came from
// (invariant a); everything else is optional.
type Dataset struct {
	Title       string
	Description string
	Comment     string
	Provenance  string
	License     License
	Contacts    []Contact
	Tags        Tags
	Region      *Region
	Issued      *Date
	LastChecked *Date
	SourceURL   string
	Resources   []Resource
}

// Validate enforces invariant (a): a dataset without a title cannot be
// written. Callers report this as a per-record translation error (spec.md
// §7 kind 4) without aborting the surrounding batch.
func (d *Dataset) Validate() error {
	if d.Title == "" {
		return errMissingTitle
	}
	return nil
}

type missingTitleError struct{}

func (missingTitleError) Error() string { return "dataset has no title" }

var errMissingTitle = missingTitleError{}

// Equal is a deep, order-sensitive comparison used by the codec round-trip
// test (spec.md §8).
func (d *Dataset) Equal(other *Dataset) bool {
	if d == nil || other == nil {
		return d == other
	}
	if d.Title != other.Title || d.Description != other.Description ||
		d.Comment != other.Comment || d.Provenance != other.Provenance ||
		d.SourceURL != other.SourceURL {
		return false
	}
	if !d.License.Equal(other.License) {
		return false
	}
	if len(d.Contacts) != len(other.Contacts) {
		return false
	}
	for i := range d.Contacts {
		a, b := d.Contacts[i], other.Contacts[i]
		if a.Name != b.Name || len(a.Emails) != len(b.Emails) {
			return false
		}
		for j := range a.Emails {
			if a.Emails[j] != b.Emails[j] {
				return false
			}
		}
	}
	if len(d.Tags) != len(other.Tags) {
		return false
	}
	for i := range d.Tags {
		if !d.Tags[i].Equal(other.Tags[i]) {
			return false
		}
	}
	if (d.Region == nil) != (other.Region == nil) {
		return false
	}
	if d.Region != nil && !d.Region.Equal(*other.Region) {
		return false
	}
	if (d.Issued == nil) != (other.Issued == nil) {
		return false
	}
	if d.Issued != nil && *d.Issued != *other.Issued {
		return false
	}
	if (d.LastChecked == nil) != (other.LastChecked == nil) {
		return false
	}
	if d.LastChecked != nil && *d.LastChecked != *other.LastChecked {
		return false
	}
	if len(d.Resources) != len(other.Resources) {
		return false
	}
	for i := range d.Resources {
		if d.Resources[i] != other.Resources[i] {
			return false
		}
	}
	return true
}
