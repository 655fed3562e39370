package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestPatchUpdateFlagsOnlySetChangedFields(t *testing.T) {
	cmd := newPatchUpdateCmd()
	if err := cmd.ParseFlags([]string{
		"--title", "New title",
		"--audit-date", "2025-03-14",
		"--active=false",
	}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	input, err := patchInputFromFlags(cmd)
	if err != nil {
		t.Fatalf("patchInputFromFlags() error = %v", err)
	}
	if input.Title == nil || *input.Title != "New title" {
		t.Fatalf("title = %v, want New title", input.Title)
	}
	if input.CommitHash != nil || input.Summary != nil || input.DiffContent != nil || input.MarkdownContent != nil {
		t.Fatalf("unset flags leaked into input: %+v", input)
	}
	if input.AuditDate == nil || !input.AuditDate.Equal(time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("audit date = %v", input.AuditDate)
	}
	if input.Active == nil || *input.Active {
		t.Fatalf("active = %v, want false", input.Active)
	}
}

func TestPatchInputReadsDiffFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abc1234.patch")
	if err := os.WriteFile(path, []byte("diff --git a/x b/x\n"), 0o644); err != nil {
		t.Fatalf("write diff: %v", err)
	}

	cmd := newPatchCreateCmd()
	if err := cmd.ParseFlags([]string{"--diff-file", path}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	input, err := patchInputFromFlags(cmd)
	if err != nil {
		t.Fatalf("patchInputFromFlags() error = %v", err)
	}
	if input.DiffContent == nil || *input.DiffContent != "diff --git a/x b/x\n" {
		t.Fatalf("diff = %v", input.DiffContent)
	}

	both := newPatchCreateCmd()
	if err := both.ParseFlags([]string{"--diff", "x", "--diff-file", path}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	if _, err := patchInputFromFlags(both); err == nil {
		t.Fatalf("patchInputFromFlags(--diff and --diff-file) error = nil")
	}
}

func TestPatchInputRejectsBadAuditDate(t *testing.T) {
	cmd := newPatchCreateCmd()
	if err := cmd.ParseFlags([]string{"--audit-date", "14/03/2025"}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	if _, err := patchInputFromFlags(cmd); err == nil {
		t.Fatalf("patchInputFromFlags() error = nil")
	}
}

func runCLI(t *testing.T, configPath string, args ...string) string {
	t.Helper()

	// Persistent flags are package globals; reset them so runs don't leak.
	cfgFile, userRef = "", ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", configPath}, args...))
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("patchtriage %s error = %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func TestCLIWorkflow(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	config := strings.Join([]string{
		"database:",
		"  dsn: " + filepath.Join(dir, "triage.sqlite"),
		"triage:",
		"  system_user_email: system@example.com",
		"",
	}, "\n")
	if err := os.WriteFile(configPath, []byte(config), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	runCLI(t, configPath, "init-db")
	runCLI(t, configPath, "user", "create", "--username", "reviewer", "--email", "reviewer@example.com")

	out := runCLI(t, configPath, "patch", "create", "--hash", "abc1234", "--title", "Fix XSS", "--issue-type", "security")
	if !strings.Contains(out, "created patch 1 (abc1234)") {
		t.Fatalf("patch create output = %q", out)
	}

	out = runCLI(t, configPath, "--user", "reviewer@example.com", "vote", "1", "useful")
	if !strings.Contains(out, "patch 1: 1 useful / 0 not useful") {
		t.Fatalf("vote output = %q", out)
	}

	out = runCLI(t, configPath, "patch", "recount")
	if !strings.Contains(out, "recounted 1 patches") {
		t.Fatalf("recount output = %q", out)
	}

	exportPath := filepath.Join(dir, "exports", "triage.json")
	out = runCLI(t, configPath, "export", exportPath)
	if !strings.Contains(out, "patches=1 ratings=1 claims=0 claim_logs=0") {
		t.Fatalf("export output = %q", out)
	}
	if _, err := os.Stat(exportPath); err != nil {
		t.Fatalf("export file: %v", err)
	}
}
