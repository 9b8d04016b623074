package export

import (
	"bytes"
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"testing"
	"time"

	"calexport/internal/model"
)

func samplePayload() *Payload {
	loc := time.FixedZone("UTC+1", 3600)
	until := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	return Assemble(Input{
		GeneratedAt: time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC),
		Window: model.Window{
			From: time.Date(2025, time.March, 1, 0, 0, 0, 0, loc),
			To:   time.Date(2025, time.March, 8, 0, 0, 0, 0, loc),
		},
		Requested: []string{"Work"},
		Events: []model.Event{
			{
				UID:      "standup",
				Title:    "Standup <daily>",
				Calendar: "Work",
				Start:    time.Date(2025, time.March, 3, 9, 0, 0, 0, loc),
				End:      time.Date(2025, time.March, 3, 9, 15, 0, 0, loc),
				URL:      "https://meet.example.com/?a=1&b=2",
				Status:   model.StatusConfirmed,
				Organizer: &model.Participant{
					Name: "Alice",
					URI:  "mailto:alice@example.com",
					Role: model.ParticipantRoleChair,
				},
				Attendees: []model.Participant{{URI: "mailto:bob@example.com"}},
				RecurrenceRules: []model.RecurrenceRule{
					{Frequency: model.FrequencyDaily, Interval: 1, End: &model.RecurrenceEnd{EndDate: &until}},
				},
			},
			{
				UID:      "offsite",
				Title:    "Offsite",
				Calendar: "Work",
				AllDay:   true,
				Start:    time.Date(2025, time.March, 5, 0, 0, 0, 0, loc),
				End:      time.Date(2025, time.March, 6, 0, 0, 0, 0, loc),
			},
		},
	})
}

func TestMarshalDeterministic(t *testing.T) {
	first, err := Marshal(samplePayload())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := Marshal(samplePayload())
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("output differs between runs:\n%s\n---\n%s", first, again)
		}
	}
}

func TestMarshalFormatting(t *testing.T) {
	data, err := Marshal(samplePayload())
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)

	if !strings.HasSuffix(s, "}\n") {
		t.Errorf("output should end with a newline")
	}
	if !strings.Contains(s, "\n  \"calendars\": [") {
		t.Errorf("output is not two-space indented:\n%s", s)
	}
	if !strings.Contains(s, `"url": "https://meet.example.com/?a=1&b=2"`) {
		t.Errorf("URL should not be HTML-escaped:\n%s", s)
	}
	if !strings.Contains(s, `"title": "Standup <daily>"`) {
		t.Errorf("title should not be HTML-escaped:\n%s", s)
	}
	for _, key := range []string{`"notes": null`, `"location": null`, `"occurrence_count": null`, `"organizer": null`, `"attendees": null`, `"recurrence_rule": null`} {
		if !strings.Contains(s, key) {
			t.Errorf("missing %s in output:\n%s", key, s)
		}
	}
}

var snakeCase = regexp.MustCompile(`^[a-z]+(_[a-z]+)*$`)

// TestMarshalKeysSortedAndSnakeCase walks every object in the output and
// checks key order and naming.
func TestMarshalKeysSortedAndSnakeCase(t *testing.T) {
	data, err := Marshal(samplePayload())
	if err != nil {
		t.Fatal(err)
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		t.Fatal(err)
	}

	dec = json.NewDecoder(bytes.NewReader(data))
	checkObjectKeys(t, dec)
}

func checkObjectKeys(t *testing.T, dec *json.Decoder) {
	t.Helper()
	tok, err := dec.Token()
	if err != nil {
		t.Fatal(err)
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return
	}
	switch delim {
	case '{':
		var keys []string
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				t.Fatal(err)
			}
			key := keyTok.(string)
			if !snakeCase.MatchString(key) {
				t.Errorf("key %q is not snake_case", key)
			}
			keys = append(keys, key)
			checkObjectKeys(t, dec)
		}
		if !sort.StringsAreSorted(keys) {
			t.Errorf("keys not sorted: %v", keys)
		}
		dec.Token()
	case '[':
		for dec.More() {
			checkObjectKeys(t, dec)
		}
		dec.Token()
	}
}

func TestMarshalRoundTripShape(t *testing.T) {
	data, err := Marshal(samplePayload())
	if err != nil {
		t.Fatal(err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}

	if doc["event_count"].(float64) != float64(len(doc["events"].([]any))) {
		t.Errorf("event_count does not match events")
	}
	rng := doc["range"].(map[string]any)
	if rng["from"] != "2025-03-01" || rng["to"] != "2025-03-08" {
		t.Errorf("range = %v", rng)
	}

	events := doc["events"].([]any)
	standup := events[0].(map[string]any)
	rule := standup["recurrence_rule"].(map[string]any)
	if rule["end_date"] != "2025-06-01T00:00:00Z" || rule["occurrence_count"] != nil {
		t.Errorf("recurrence_rule = %v", rule)
	}
	if rule["frequency"] != "daily" || rule["interval"].(float64) != 1 {
		t.Errorf("recurrence_rule = %v", rule)
	}
	attendee := standup["attendees"].([]any)[0].(map[string]any)
	if attendee["name"] != nil || attendee["status"] != "unknown" || attendee["role"] != "unknown" {
		t.Errorf("attendee = %v", attendee)
	}

	offsite := events[1].(map[string]any)
	if offsite["start"] != "2025-03-05" || offsite["all_day"] != true {
		t.Errorf("offsite = %v", offsite)
	}
}
