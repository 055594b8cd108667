package cmd

import (
	"strings"
	"testing"
)

// ============================================================================
// Root Command Tests
// ============================================================================

func TestRootCmd(t *testing.T) {
	if rootCmd.Use != "quarry" {
		t.Errorf("expected Use=%q, got %q", "quarry", rootCmd.Use)
	}
	if rootCmd.Short == "" {
		t.Error("expected non-empty Short description")
	}
	if rootCmd.Long == "" {
		t.Error("expected non-empty Long description")
	}
	if !rootCmd.SilenceUsage {
		t.Error("expected SilenceUsage so runtime errors do not dump help text")
	}
}

func TestRootCmdRegistersSubcommands(t *testing.T) {
	want := []string{"index", "query", "delete", "serve", "version"}

	for _, name := range want {
		found := false
		for _, sub := range rootCmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected subcommand %q to be registered", name)
		}
	}
}

func TestRootCmdHelp(t *testing.T) {
	var out strings.Builder
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--help"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute --help: %v", err)
	}
	if !strings.Contains(out.String(), "pgvector") {
		t.Error("expected help output to describe the vector store")
	}
}
