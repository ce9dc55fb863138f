// SPDX-License-Identifier: MIT

package duration

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		text    string
		want    int64
		wantErr bool
	}{
		{"01:02:03", 3723, false},
		{"1:02:03", 3723, false},
		{"30:45", 1845, false},
		{"15", 15, false},
		{"0", 0, false},
		{"00:00:00", 0, false},
		{"10:00:00", 36000, false},
		{"", 0, true},
		{"aa:bb", 0, true},
		{"1:2:3:4", 0, true},
		{"-5", 0, true},
		{"1::3", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := Parse(tt.text)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.text, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestParseISO8601(t *testing.T) {
	tests := []struct {
		text    string
		want    int64
		wantErr bool
	}{
		{"PT1H2M3S", 3723, false},
		{"PT4M13S", 253, false},
		{"PT15S", 15, false},
		{"PT1H", 3600, false},
		{"PT30M45S", 1845, false},
		{"P1DT1S", 86401, false},
		{"P0D", 0, false},
		{"PT", 0, true},
		{"", 0, true},
		{"1H2M", 0, true},
		{"PT1X", 0, true},
		{"PTH", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := ParseISO8601(tt.text)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseISO8601(%q) error = %v, wantErr %v", tt.text, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseISO8601(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestClock(t *testing.T) {
	tests := []struct {
		secs int64
		want string
	}{
		{3723, "01:02:03"},
		{1845, "00:30:45"},
		{15, "00:00:15"},
		{0, "00:00:00"},
		{-3, "00:00:00"},
		{36001, "10:00:01"},
	}

	for _, tt := range tests {
		if got := Clock(tt.secs); got != tt.want {
			t.Errorf("Clock(%d) = %q, want %q", tt.secs, got, tt.want)
		}
	}
}

func TestVideoID(t *testing.T) {
	tests := []struct {
		url  string
		want string
		ok   bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://www.youtube.com/shorts/abc123", "abc123", true},
		{"https://www.youtube.com/embed/abc123", "abc123", true},
		{"https://www.youtube.com/v/abc123", "abc123", true},
		{"https://www.youtube.com/channel/UCabc", "", false},
		{"://missing-scheme", "", false},
	}

	for _, tt := range tests {
		got, ok := VideoID(tt.url)
		if got != tt.want || ok != tt.ok {
			t.Errorf("VideoID(%q) = (%q,%v), want (%q,%v)", tt.url, got, ok, tt.want, tt.ok)
		}
	}
}
