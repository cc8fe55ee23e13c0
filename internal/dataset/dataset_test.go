package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatasetValidateMissingTitle(t *testing.T) {
	d := &Dataset{}
	require.Error(t, d.Validate())

	d.Title = "Grundwasserstand Bayern"
	assert.NoError(t, d.Validate())
}

func TestDatasetEqualNilHandling(t *testing.T) {
	var a, b *Dataset
	assert.True(t, a.Equal(b))

	a = &Dataset{Title: "x"}
	assert.False(t, a.Equal(nil))
}

func TestDateTimeRoundTrip(t *testing.T) {
	d := Date{Year: 2024, Month: 3, Day: 17}
	got := NewDate(d.Time())
	assert.Equal(t, d, got)
	assert.False(t, d.IsZero())
	assert.True(t, Date{}.IsZero())
}
