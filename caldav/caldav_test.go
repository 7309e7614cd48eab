package caldav

import "testing"

const sampleEvent = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:1
DTSTART:20250601T090000Z
DTEND:20250601T100000Z
SUMMARY:Standup
END:VEVENT
END:VCALENDAR
`

func TestMatchesFilterByComponentName(t *testing.T) {
	if !matchesFilter([]byte(sampleEvent), "VEVENT", nil) {
		t.Fatal("expected VEVENT component to match")
	}
	if matchesFilter([]byte(sampleEvent), "VTODO", nil) {
		t.Fatal("expected no VTODO component to match")
	}
}

func TestMatchesFilterByTimeRange(t *testing.T) {
	overlapping := &timeRange{Start: "20250601T080000Z", End: "20250601T093000Z"}
	if !matchesFilter([]byte(sampleEvent), "VEVENT", overlapping) {
		t.Fatal("expected overlapping range to match")
	}

	disjoint := &timeRange{Start: "20250602T000000Z", End: "20250603T000000Z"}
	if matchesFilter([]byte(sampleEvent), "VEVENT", disjoint) {
		t.Fatal("expected disjoint range not to match")
	}
}

func TestParseICalTimeFormats(t *testing.T) {
	if _, ok := parseICalTime("20250601T090000Z"); !ok {
		t.Fatal("expected UTC form to parse")
	}
	if _, ok := parseICalTime("20250601"); !ok {
		t.Fatal("expected all-day form to parse")
	}
	if _, ok := parseICalTime("not-a-date"); ok {
		t.Fatal("expected garbage to fail")
	}
}
