package testutil

import (
	"fmt"
	"hash/fnv"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// AllocateTestPort returns a deterministic port based on test name
func AllocateTestPort(t *testing.T) int {
	t.Helper()
	return AllocateTestPortN(t, 0)
}

// AllocateTestPortN returns a deterministic port based on test name and index.
func AllocateTestPortN(t *testing.T, n int) int {
	t.Helper()
	h := fnv.New32a()
	h.Write([]byte(t.Name()))
	h.Write([]byte{byte(n)})
	return 10000 + int(h.Sum32()%10000)
}

// WaitForHealthy waits for a URL to return 200 OK
func WaitForHealthy(t *testing.T, url string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 500 * time.Millisecond}

	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			return
		}
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(50 * time.Millisecond)
	}

	t.Fatalf("Service at %s did not become healthy within %v", url, timeout)
}

// Eventually retries a condition until it returns true or timeout expires
func Eventually(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("Condition did not become true within timeout")
}

// WriteEngine writes an executable shell script named name into dir and
// returns its path. Tests using fake engines are skipped on Windows.
func WriteEngine(t *testing.T, dir, name, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake engine scripts require a POSIX shell")
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake engine: %v", err)
	}
	return path
}

// FakeEngine writes script as friedman-cli in a fresh temp dir.
func FakeEngine(t *testing.T, script string) string {
	t.Helper()
	return WriteEngine(t, t.TempDir(), "friedman-cli", script)
}

// JSONEngine prints doc on stdout and exits 0.
func JSONEngine(doc string) string {
	return fmt.Sprintf("#!/bin/sh\ncat <<'__EOF__'\n%s\n__EOF__\n", doc)
}

// EchoArgsEngine prints its arguments as {"args":[...]}. Arguments must not
// contain double quotes or backslashes.
func EchoArgsEngine() string {
	return `#!/bin/sh
printf '{"args":['
sep=""
for a in "$@"; do
  printf '%s"%s"' "$sep" "$a"
  sep=","
done
printf ']}\n'
`
}

// ProgressEngine writes each line to stderr, then prints doc on stdout.
func ProgressEngine(lines []string, doc string) string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	for _, l := range lines {
		fmt.Fprintf(&b, "echo '%s' >&2\n", l)
	}
	fmt.Fprintf(&b, "cat <<'__EOF__'\n%s\n__EOF__\n", doc)
	return b.String()
}

// FailingEngine writes stderr and exits with code, optionally printing stdout.
func FailingEngine(code int, stderr, stdout string) string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	if stdout != "" {
		fmt.Fprintf(&b, "echo '%s'\n", stdout)
	}
	fmt.Fprintf(&b, "echo '%s' >&2\nexit %d\n", stderr, code)
	return b.String()
}

// SleepEngine sleeps for the given number of seconds before printing {}.
func SleepEngine(seconds int) string {
	return fmt.Sprintf("#!/bin/sh\nsleep %d\necho '{}'\n", seconds)
}
