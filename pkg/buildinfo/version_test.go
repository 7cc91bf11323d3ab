package buildinfo

import (
	"strings"
	"testing"
)

func TestStamped(t *testing.T) {
	old := [3]string{Version, Commit, Date}
	t.Cleanup(func() { Version, Commit, Date = old[0], old[1], old[2] })

	Version, Commit, Date = "v1.2.3", "abc123", "2024-01-01T00:00:00Z"

	if got := UserAgent(); got != "dependents/v1.2.3" {
		t.Errorf("UserAgent() = %q", got)
	}
	for _, want := range []string{"v1.2.3", "abc123", "2024-01-01T00:00:00Z"} {
		if !strings.Contains(String(), want) {
			t.Errorf("String() missing %q", want)
		}
		if !strings.Contains(Template(), want) {
			t.Errorf("Template() missing %q", want)
		}
	}
	if !strings.HasPrefix(Template(), "{{.Name}} version ") {
		t.Errorf("Template() = %q", Template())
	}
}
