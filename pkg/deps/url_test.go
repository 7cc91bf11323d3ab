package deps

import (
	"slices"
	"testing"
)

func TestCDNPathSegments(t *testing.T) {
	tests := []struct {
		fileID int64
		want   []string
	}{
		{3488006, []string{"files", "3488", "006", "pack.zip"}},
		{12345, []string{"files", "1234", "5", "pack.zip"}},
		{1234, []string{"files", "1234", "pack.zip"}},
		{42, []string{"files", "42", "pack.zip"}},
	}
	for _, tt := range tests {
		got := CDNPathSegments(tt.fileID, "pack.zip")
		if !slices.Equal(got, tt.want) {
			t.Errorf("CDNPathSegments(%d) = %v, want %v", tt.fileID, got, tt.want)
		}
	}
}

func TestSynthesizeCDNURL(t *testing.T) {
	tests := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{"https://edge.forgecdn.net", "https://edge.forgecdn.net/files/3488/006/My%20Pack.zip", false},
		{"https://edge.forgecdn.net/ignored/?x=1", "https://edge.forgecdn.net/files/3488/006/My%20Pack.zip", false},
		{"edge.forgecdn.net", "", true},
		{"://bad", "", true},
	}
	for _, tt := range tests {
		got, err := SynthesizeCDNURL(tt.base, 3488006, "My Pack.zip")
		if (err != nil) != tt.wantErr {
			t.Errorf("SynthesizeCDNURL(%q) error = %v, wantErr %v", tt.base, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("SynthesizeCDNURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}
