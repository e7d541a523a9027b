package main

import "testing"

func TestPlayerRow(t *testing.T) {
	tests := []struct {
		name     string
		payload  map[string]interface{}
		wantID   string
		wantName string
		wantSeen string
		wantHome string
	}{
		{
			name: "complete record",
			payload: map[string]interface{}{
				"id":        float64(7),
				"name":      "Leka",
				"last_seen": "2026-08-29T14:03:05Z",
				"home_x":    float64(120.4),
				"home_y":    float64(64),
				"home_z":    float64(-33.9),
			},
			wantID:   "7",
			wantName: "Leka",
			wantSeen: "2026-08-29 14:03",
			wantHome: "120 64 -34",
		},
		{
			name: "no home or last seen",
			payload: map[string]interface{}{
				"id":   float64(2),
				"name": "toma",
			},
			wantID:   "2",
			wantName: "toma",
			wantSeen: "never",
			wantHome: "-",
		},
		{
			name: "id sent as string",
			payload: map[string]interface{}{
				"id":   "7",
				"name": "lazar",
			},
			wantID:   "-",
			wantName: "lazar",
			wantSeen: "never",
			wantHome: "-",
		},
		{
			name:     "empty record",
			payload:  map[string]interface{}{},
			wantID:   "-",
			wantName: "-",
			wantSeen: "never",
			wantHome: "-",
		},
		{
			name: "name of wrong type",
			payload: map[string]interface{}{
				"id":   float64(3),
				"name": float64(12),
			},
			wantID:   "3",
			wantName: "-",
			wantSeen: "never",
			wantHome: "-",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, name, seen, home := playerRow(tt.payload)
			if id != tt.wantID {
				t.Errorf("id = %q, want %q", id, tt.wantID)
			}
			if name != tt.wantName {
				t.Errorf("name = %q, want %q", name, tt.wantName)
			}
			if seen != tt.wantSeen {
				t.Errorf("last seen = %q, want %q", seen, tt.wantSeen)
			}
			if home != tt.wantHome {
				t.Errorf("home = %q, want %q", home, tt.wantHome)
			}
		})
	}
}

func TestFormatTime(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2026-08-29T14:03:05Z", "2026-08-29 14:03"},
		{"2026-08-29T14:03:05.812Z", "2026-08-29 14:03"},
		{"2026-08-29T14:03:05+02:00", "2026-08-29 14:03"},
		{"not a timestamp", "not a timestamp"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := formatTime(tt.in); got != tt.want {
			t.Errorf("formatTime(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
