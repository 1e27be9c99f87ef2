package test

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// toolkitBinary returns the path of the binary built at the repository root.
func toolkitBinary(t *testing.T) string {
	t.Helper()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get CWD: %v", err)
	}
	bin := filepath.Join(cwd, "..", "c0microsd-toolkit")
	if _, err := os.Stat(bin); os.IsNotExist(err) {
		t.Fatalf("Toolkit binary not found at %s. Build it first.", bin)
	}
	return bin
}

// writeLocalConfig writes a config for an emulated card persisted in image.
func writeLocalConfig(t *testing.T, mode, persistence, image string) string {
	t.Helper()
	content := fmt.Sprintf(`
device:
  type: local
  local:
    mode: %s
    latency: 1
    persistence:
      type: %s
      path: "%s"
log:
  level: debug
  file: "%s"
`, mode, persistence, image, filepath.Join(t.TempDir(), "toolkit.log"))

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

type result struct {
	code   int
	stdout string
	stderr string
}

func runToolkit(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	cmd := exec.Command(toolkitBinary(t), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewBufferString(stdin)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	code := 0
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	} else if err != nil {
		t.Fatalf("Failed to run toolkit: %v", err)
	}
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}
