package wire

import (
	"os/exec"
	"strings"
	"testing"

	"github.com/AathavaleHarsh/issue-resolver/internal/session"
	"github.com/stretchr/testify/assert"
)

func TestFormatEvent(t *testing.T) {
	tests := []struct {
		origin session.Origin
		want   string
		ok     bool
	}{
		{session.Agent, "AGENT: hi", true},
		{session.Error, "ERROR: hi", true},
		{session.System, "hi", true},
		{session.Done, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin.String(), func(t *testing.T) {
			got, ok := FormatEvent(session.LogEvent{Origin: tt.origin, Content: "hi"})
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

// The terminal client must not link the HTTP server or its dependencies.
func TestClientDoesNotImportServer(t *testing.T) {
	out, err := exec.Command("go", "list", "-deps", "github.com/AathavaleHarsh/issue-resolver/cmd/issue-tui").Output()
	if err != nil {
		t.Skipf("go list unavailable: %v", err)
	}
	deps := strings.Fields(string(out))
	for _, forbidden := range []string{
		"github.com/AathavaleHarsh/issue-resolver/internal/ws",
		"github.com/go-chi/chi/v5",
		"github.com/shirou/gopsutil/v3/process",
	} {
		assert.NotContains(t, deps, forbidden)
	}
}
