package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes, _ := io.ReadAll(stdoutR)
	stderrBytes, _ := io.ReadAll(stderrR)

	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	configYAML := `
service:
  name: herald
server:
  listen: "127.0.0.1:0"
state:
  path: ` + filepath.Join(dir, "herald.db") + `
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(configYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	botsYAML := `
bots:
  - name: build-bot
    api_key: secret-key
    stream: engineering
`
	if err := os.WriteFile(filepath.Join(dir, "bots.yaml"), []byte(botsYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestRunCLIUnknownCommand(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"bogus"})
	})
	if code != 1 {
		t.Fatalf("runCLI() code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Unknown command: bogus") {
		t.Fatalf("stderr missing unknown command message: %s", stderr)
	}
}

func TestRunCLINoArgs(t *testing.T) {
	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCLI(nil)
	})
	if code != 1 {
		t.Fatalf("runCLI() code = %d, want 1, out: %s", code, stdout)
	}
}

func TestRunVersion(t *testing.T) {
	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runVersion(nil)
	})
	if code != 0 {
		t.Fatalf("runVersion() code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "herald ") {
		t.Fatalf("stdout missing version line: %s", stdout)
	}
}

func TestRunVersionJSON(t *testing.T) {
	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runVersion([]string{"--json"})
	})
	if code != 0 {
		t.Fatalf("runVersion() code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, `"version"`) {
		t.Fatalf("stdout missing version field: %s", stdout)
	}
}

func TestRunConfigCheckValid(t *testing.T) {
	dir := writeTestConfig(t)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigCheck([]string{"--config", dir})
	})
	if code != 0 {
		t.Fatalf("runConfigCheck() code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Configuration check PASSED") {
		t.Fatalf("stdout missing pass summary: %s", stdout)
	}
	if !strings.Contains(stdout, "bots:    1") {
		t.Fatalf("stdout missing bot count: %s", stdout)
	}
}

func TestRunConfigCheckMissingConfig(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigCheck([]string{"--config", filepath.Join(t.TempDir(), "nope")})
	})
	if code != 1 {
		t.Fatalf("runConfigCheck() code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Configuration check FAILED") {
		t.Fatalf("stderr missing failure message: %s", stderr)
	}
}

func TestRunConfigShowRedactsKeys(t *testing.T) {
	dir := writeTestConfig(t)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigShow([]string{"--config", dir})
	})
	if code != 0 {
		t.Fatalf("runConfigShow() code = %d, stderr: %s", code, stderr)
	}
	if strings.Contains(stdout, "secret-key") {
		t.Fatalf("stdout leaked an API key: %s", stdout)
	}
	if !strings.Contains(stdout, "bots:") {
		t.Fatalf("stdout missing bots section: %s", stdout)
	}
	if !strings.Contains(stdout, "build-bot") {
		t.Fatalf("stdout missing bot name: %s", stdout)
	}
	if !strings.Contains(stdout, "[redacted]") {
		t.Fatalf("stdout missing redaction marker: %s", stdout)
	}
}

func TestRunConfigShowJSONRedactsKeys(t *testing.T) {
	dir := writeTestConfig(t)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigShow([]string{"--config", dir, "--json"})
	})
	if code != 0 {
		t.Fatalf("runConfigShow() code = %d, stderr: %s", code, stderr)
	}
	if strings.Contains(stdout, "secret-key") {
		t.Fatalf("stdout leaked an API key: %s", stdout)
	}
	if !strings.Contains(stdout, `"bots"`) {
		t.Fatalf("stdout missing bots section: %s", stdout)
	}
	if !strings.Contains(stdout, `"[redacted]"`) {
		t.Fatalf("stdout missing redaction marker: %s", stdout)
	}
}

func TestRunConfigLockThenCheck(t *testing.T) {
	dir := writeTestConfig(t)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigLock([]string{"--config", dir})
	})
	if code != 0 {
		t.Fatalf("runConfigLock() code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Configuration locked") {
		t.Fatalf("stdout missing lock summary: %s", stdout)
	}
	if _, err := os.Stat(filepath.Join(dir, ".checksums")); err != nil {
		t.Fatalf("expected .checksums to be written: %v", err)
	}

	code, _, stderr = captureOutputWithExitCode(t, func() int {
		return runConfigCheck([]string{"--config", dir})
	})
	if code != 0 {
		t.Fatalf("config check after lock failed: %s", stderr)
	}
}

func TestRunConfigCheckDetectsTamperedBots(t *testing.T) {
	dir := writeTestConfig(t)

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigLock([]string{"--config", dir})
	})
	if code != 0 {
		t.Fatalf("runConfigLock() code = %d, stderr: %s", code, stderr)
	}

	tampered := `
bots:
  - name: rogue-bot
    api_key: stolen
    stream: engineering
`
	if err := os.WriteFile(filepath.Join(dir, "bots.yaml"), []byte(tampered), 0o600); err != nil {
		t.Fatal(err)
	}

	code, _, stderr = captureOutputWithExitCode(t, func() int {
		return runConfigCheck([]string{"--config", dir})
	})
	if code != 1 {
		t.Fatalf("config check should fail after tampering, got code %d", code)
	}
	if !strings.Contains(stderr, "herald config lock") {
		t.Fatalf("stderr missing re-lock hint: %s", stderr)
	}
}

func TestRunConfigNounActionHelp(t *testing.T) {
	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigNoun([]string{"check", "--help"})
	})
	if code != 0 {
		t.Fatalf("runConfigNoun() code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Usage: herald config check") {
		t.Fatalf("stdout missing action help usage: %s", stdout)
	}
}

func TestRunConfigNounUnknownAction(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigNoun([]string{"bogus"})
	})
	if code != 1 {
		t.Fatalf("runConfigNoun() code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Unknown config action: bogus") {
		t.Fatalf("stderr missing unknown action message: %s", stderr)
	}
}

func TestPrintUsageListsCommands(t *testing.T) {
	_, stdout, _ := captureOutputWithExitCode(t, func() int {
		printUsage()
		return 0
	})
	for _, cmd := range []string{"start", "watch", "config check", "config lock", "version"} {
		if !strings.Contains(stdout, cmd) {
			t.Fatalf("usage missing %q: %s", cmd, stdout)
		}
	}
}
