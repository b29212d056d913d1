package config

import (
	"testing"
	"time"
)

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{name: "empty", raw: "", want: 0},
		{name: "seconds", raw: "30s", want: 30 * time.Second},
		{name: "minutes", raw: "5m", want: 5 * time.Minute},
		{name: "spaces trimmed", raw: " 1h ", want: time.Hour},
		{name: "negative", raw: "-5s", wantErr: true},
		{name: "garbage", raw: "soon", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDurationField("x", tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDurationField(%q): expected error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDurationField(%q): %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("x", "", 42*time.Second)
	if err != nil || d != 42*time.Second {
		t.Fatalf("empty = %v/%v, want default", d, err)
	}
	d, err = ParseDurationOrDefault("x", "10s", 42*time.Second)
	if err != nil || d != 10*time.Second {
		t.Fatalf("explicit = %v/%v, want 10s", d, err)
	}
	if _, err := ParseDurationOrDefault("x", "bogus", time.Second); err == nil {
		t.Fatal("invalid value must error, not default")
	}
}

func TestParseHourField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		def     int
		want    int
		wantErr bool
	}{
		{raw: "", def: 22, want: 22},
		{raw: "08:00", want: 8},
		{raw: "22:30", want: 22}, // minutes ignored
		{raw: "7", want: 7},
		{raw: "24:00", wantErr: true},
		{raw: "-1:00", wantErr: true},
		{raw: "noon", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseHourField("x", tt.raw, tt.def)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseHourField(%q): expected error", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseHourField(%q): %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("ParseHourField(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}
