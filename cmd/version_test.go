package cmd

import (
	"strings"
	"testing"
)

// ============================================================================
// Version Command Tests
// ============================================================================

func TestVersionCmd(t *testing.T) {
	originalVersion := Version
	originalBuildTime := BuildTime
	originalGitCommit := GitCommit
	defer func() {
		Version = originalVersion
		BuildTime = originalBuildTime
		GitCommit = originalGitCommit
	}()

	Version = "1.2.3"
	BuildTime = "2026-08-25T00:00:00Z"
	GitCommit = "abc1234"

	var out strings.Builder
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)

	for _, want := range []string{
		"quarry 1.2.3",
		"build time: 2026-08-25T00:00:00Z",
		"git commit: abc1234",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("version output missing %q:\n%s", want, out.String())
		}
	}
}

func TestVersionDefaults(t *testing.T) {
	if Version == "" || BuildTime == "" || GitCommit == "" {
		t.Error("version variables must have non-empty defaults for non-ldflags builds")
	}
}
