package utils

import (
	"errors"
	"testing"
)

func TestMakeSafeFilename(t *testing.T) {
	tests := map[string]string{
		"Plain Name": "Plain Name",
		"a/b":        "a_x2f_b",
		`what?<>`:    "what_x3f__x3c__x3e_",
		"tab\tname":  "tab_x09_name",
		"ユニコード名前":    "ユニコード名前",
		"del\x7f":    "del\x7f",
	}
	for in, want := range tests {
		if got := MakeSafeFilename(in); got != want {
			t.Errorf("MakeSafeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		target  string
		want    string
		wantErr bool
	}{
		{"1234567890", "1234567890", false},
		{" 42 ", "42", false},
		{"https://hub.vroid.com/characters/111/models/2222", "2222", false},
		{"https://hub.vroid.com/characters/111/models/2222/", "2222", false},
		{"https://hub.vroid.com/characters/111/models", "", true},
		{"not a target", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			got, err := ParseTarget(tt.target)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTarget) {
					t.Errorf("ParseTarget(%q) error = %v, want ErrInvalidTarget", tt.target, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseTarget(%q) = %q, %v, want %q", tt.target, got, err, tt.want)
			}
		})
	}
}

func TestOutputFileName(t *testing.T) {
	if got := OutputFileName("9", ""); got != "[9].deobf.vrm" {
		t.Errorf("got %q", got)
	}
	if got := OutputFileName("9", "A:B"); got != "[9].A_x3a_B.deobf.vrm" {
		t.Errorf("got %q", got)
	}
}
