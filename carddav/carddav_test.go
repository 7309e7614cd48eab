package carddav

import "testing"

const sampleCard = `BEGIN:VCARD
VERSION:3.0
FN:Jane Doe
EMAIL:jane@example.com
UID:1
END:VCARD
`

func TestMatchesFiltersNoFilters(t *testing.T) {
	if !matchesFilters([]byte(sampleCard), nil) {
		t.Fatal("expected no filters to always match")
	}
}

func TestMatchesFiltersByFieldSubstring(t *testing.T) {
	filters := []propFilter{{Name: "FN", TextMatch: "jane"}}
	if !matchesFilters([]byte(sampleCard), filters) {
		t.Fatal("expected FN substring match")
	}

	filters = []propFilter{{Name: "FN", TextMatch: "bob"}}
	if matchesFilters([]byte(sampleCard), filters) {
		t.Fatal("expected no match for unrelated name")
	}
}

func TestMatchesFiltersMissingField(t *testing.T) {
	filters := []propFilter{{Name: "NICKNAME", TextMatch: "x"}}
	if matchesFilters([]byte(sampleCard), filters) {
		t.Fatal("expected missing field to fail the filter")
	}
}
