package datetime

import (
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		date    time.Time
		until   *time.Time
		ongoing bool
	}{
		{"mdy", "January 1, 2021", day(2021, 1, 1), nil, false},
		{"mdyOn", "January 1, 2021 - present", day(2021, 1, 1), nil, true},
		{"mddy", "January 1 - 12, 2021", day(2021, 1, 1), ptr(day(2021, 1, 12)), false},
		{"mdmdy", "January 1 - February 12, 2021", day(2021, 1, 1), ptr(day(2021, 2, 12)), false},
		{"mdymdy", "January 1, 2021 - February 12, 2022", day(2021, 1, 1), ptr(day(2022, 2, 12)), false},
		{"dmy", "1 January 2021", day(2021, 1, 1), nil, false},
		{"dmyOn", "1 January 2021 - ongoing", day(2021, 1, 1), nil, true},
		{"ddmy", "1 - 2 January 2021", day(2021, 1, 1), ptr(day(2021, 1, 2)), false},
		{"dmdmy", "1 January - 12 February 2022", day(2022, 1, 1), ptr(day(2022, 2, 12)), false},
		{"dmydmy", "1 January 2021 - 12 February 2022", day(2021, 1, 1), ptr(day(2022, 2, 12)), false},
		{"cross year span wins", "December 30, 2021-January 1, 2022", day(2021, 12, 30), ptr(day(2022, 1, 1)), false},
		{"present suffix", "17 November 2019 - present\n(2 years and 6 months)", day(2019, 11, 17), nil, true},
		{"en dash", "1 January – 12 February 2022", day(2022, 1, 1), ptr(day(2022, 2, 12)), false},
		{"until keyword", "3 March 2020 until 5 March 2020", day(2020, 3, 3), ptr(day(2020, 3, 5)), false},
		{"case insensitive month", "5 JUNE 2020", day(2020, 6, 5), nil, false},
		{"surrounding text", "Tanami Desert \n 27 June 2021 ", day(2021, 6, 27), nil, false},
		{"invalid month falls through", "Foobar 12, 2020 and 3 March 2021", day(2021, 3, 3), nil, false},
		{"with time", "January 15, 2022\n10:41 a.m. – 9:22 p.m. (CST)", day(2022, 1, 15), nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.input)
			if !ok {
				t.Fatalf("ParseDate(%q) found no date", tt.input)
			}
			if !got.Date.Equal(tt.date) {
				t.Errorf("date = %v, want %v", got.Date, tt.date)
			}
			switch {
			case tt.until == nil && got.Until != nil:
				t.Errorf("until = %v, want none", *got.Until)
			case tt.until != nil && got.Until == nil:
				t.Errorf("until missing, want %v", *tt.until)
			case tt.until != nil && !got.Until.Equal(*tt.until):
				t.Errorf("until = %v, want %v", *got.Until, *tt.until)
			}
			if got.Ongoing != tt.ongoing {
				t.Errorf("ongoing = %v, want %v", got.Ongoing, tt.ongoing)
			}
		})
	}
}

func TestParseDate_NoMatch(t *testing.T) {
	for _, input := range []string{
		"",
		"As of 2021",
		"31 February 2021",
		"Wuhan, Hubei, China",
	} {
		if got, ok := ParseDate(input); ok {
			t.Errorf("ParseDate(%q) = %+v, want no match", input, got)
		}
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		start  Clock
		end    *Clock
		offset *int
	}{
		{"utc offset", "10:41 a.m. (UTC+3)", Clock{10, 41}, nil, intPtr(3 * 3600)},
		{"pm no zone", "1:15 p.m.", Clock{13, 15}, nil, nil},
		{"range with markers", "10:41 a.m. – 9:22 p.m. (CST)", Clock{10, 41}, &Clock{21, 22}, nil},
		{"24h range with minutes offset", "14:29 – 14:50 (UTC+4:00)", Clock{14, 29}, &Clock{14, 50}, intPtr(4 * 3600)},
		{"negative offset with minutes", "08:00 (UTC-3:30)", Clock{8, 0}, nil, intPtr(-(3*3600 + 30*60))},
		{"midnight am", "12:05 am", Clock{0, 5}, nil, nil},
		{"noon pm", "12:30 PM", Clock{12, 30}, nil, nil},
		{"bare twelve", "12:30", Clock{12, 30}, nil, nil},
		{"and separator", "9:00 and 11:30", Clock{9, 0}, &Clock{11, 30}, nil},
		{"about prefix", "About 1:00 a.m. (local time, UTC+3)", Clock{1, 0}, nil, intPtr(3 * 3600)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTime(tt.input)
			if !ok {
				t.Fatalf("ParseTime(%q) found no time", tt.input)
			}
			if got.Start != tt.start {
				t.Errorf("start = %v, want %v", got.Start, tt.start)
			}
			switch {
			case tt.end == nil && got.End != nil:
				t.Errorf("end = %v, want none", *got.End)
			case tt.end != nil && (got.End == nil || *got.End != *tt.end):
				t.Errorf("end = %v, want %v", got.End, *tt.end)
			}
			switch {
			case tt.offset == nil && got.Zone != nil:
				t.Errorf("zone = %v, want none", got.Zone)
			case tt.offset != nil:
				if got.Zone == nil {
					t.Fatalf("zone missing, want offset %d", *tt.offset)
				}
				_, off := time.Date(2022, 1, 1, 0, 0, 0, 0, got.Zone).Zone()
				if off != *tt.offset {
					t.Errorf("offset = %d, want %d", off, *tt.offset)
				}
			}
		})
	}
}

func TestParseTime_NoMatch(t *testing.T) {
	for _, input := range []string{"", "UTC+3", "noon", "25:00"} {
		if got, ok := ParseTime(input); ok {
			t.Errorf("ParseTime(%q) = %+v, want no match", input, got)
		}
	}
}

func TestClockOn(t *testing.T) {
	zone := time.FixedZone("UTC+03:00", 3*3600)
	got := Clock{Hour: 10, Minute: 41}.On(day(2022, 2, 24), zone)
	want := time.Date(2022, 2, 24, 10, 41, 0, 0, zone)
	if !got.Equal(want) {
		t.Errorf("On = %v, want %v", got, want)
	}
	if s := (Clock{Hour: 7, Minute: 5}).String(); s != "07:05" {
		t.Errorf("String = %q, want 07:05", s)
	}
}

func ptr(t time.Time) *time.Time { return &t }

func intPtr(i int) *int { return &i }
