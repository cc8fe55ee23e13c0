package harvest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCkanLicenseTieBreak(t *testing.T) {
	cases := []struct {
		name string
		pkg  ckanPackage
		want string
	}{
		{"no license_id, no resources", ckanPackage{}, ""},
		{"license_id, no resources", ckanPackage{LicenseID: "foobar"}, "foobar"},
		{"empty license_id, one resource", ckanPackage{Resources: []ckanResource{{License: "foobar"}}}, "foobar"},
		{"empty license_id, matching resources", ckanPackage{Resources: []ckanResource{{License: "foobar"}, {License: "foobar"}}}, "foobar"},
		{"empty license_id, conflicting resources", ckanPackage{Resources: []ckanResource{{License: "foo"}, {License: "bar"}}}, ""},
		{"license_id wins over conflicting resources", ckanPackage{LicenseID: "foobar", Resources: []ckanResource{{License: "foo"}, {License: "bar"}}}, "foobar"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.pkg.takeLicense())
		})
	}
}

func TestCkanSchemaRejectsSuccessWithoutResult(t *testing.T) {
	var body any
	require.NoError(t, json.Unmarshal([]byte(`{"success": true}`), &body))
	assert.Error(t, ckanSchema().Validate(body))
}

func TestCkanSchemaAcceptsErrorResponse(t *testing.T) {
	var body any
	require.NoError(t, json.Unmarshal([]byte(`{"success": false, "error": {"message": "nope"}}`), &body))
	assert.NoError(t, ckanSchema().Validate(body))
}

func TestCkanSchemaAcceptsWellFormedResult(t *testing.T) {
	var body any
	require.NoError(t, json.Unmarshal([]byte(`{"success": true, "result": {"count": 0, "results": []}}`), &body))
	assert.NoError(t, ckanSchema().Validate(body))
}
