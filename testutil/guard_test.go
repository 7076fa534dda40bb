package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNonStandardImport(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"fmt", false},
		{"net/http", false},
		{"keepernest/pkg/domain", true},
		{"github.com/gin-gonic/gin", true},
		{"go.uber.org/zap", true},
	}
	for _, c := range cases {
		if got := NonStandardImport(c.in); got != c.want {
			t.Fatalf("NonStandardImport(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestTransportImportForbidden(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"github.com/gin-gonic/gin", true},
		{"keepernest/internal/api", true},
		{"keepernest/cmd/keepernest", true},
		{"keepernest/internal/core", false},
		{"net/http", false},
	}
	for _, c := range cases {
		if got := TransportImportForbidden(c.in); got != c.want {
			t.Fatalf("TransportImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
	if !InternalImportForbidden("keepernest/internal/cache") || InternalImportForbidden("keepernest/pkg/domain") {
		t.Fatal("InternalImportForbidden misclassified")
	}
}

func writeSource(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDirectImportViolationsIgnoresTestFilesAndDirs(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "main.go", "package tmp\nimport \"fmt\"\nfunc X() { fmt.Println() }\n")
	writeSource(t, dir, "main_test.go", "package tmp\nimport \"github.com/gin-gonic/gin\"\nvar _ = gin.New\n")
	if err := os.Mkdir(filepath.Join(dir, "sub.go"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	AssertNoDirectImports(t, dir, TransportImportForbidden, "test files are skipped")
}

func TestDirectImportViolationsReportsFile(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "handler.go", "package tmp\nimport \"github.com/gin-gonic/gin\"\nvar _ = gin.New\n")
	viols, err := directImportViolations(dir, TransportImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.Contains(viols[0], "handler.go") {
		t.Fatalf("unexpected violations %v", viols)
	}
}

func TestDirectImportViolationsParseError(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "broken.go", "package tmp\nimport (\n")
	if _, err := directImportViolations(dir, NonStandardImport); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := directImportViolations(filepath.Join(dir, "missing"), NonStandardImport); err == nil {
		t.Fatal("expected read error")
	}
}

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func TestFailIfViolations(t *testing.T) {
	var r recordingFatal
	failIfViolations(&r, "forbidden direct imports", "reason", nil)
	if r.msg != "" {
		t.Fatalf("unexpected failure %q", r.msg)
	}
	failIfViolations(&r, "forbidden direct imports", "reason", []string{"a", "b"})
	if !strings.Contains(r.msg, "reason") || !strings.Contains(r.msg, "a\nb") {
		t.Fatalf("unexpected message %q", r.msg)
	}
}

func TestTransitiveDependencyOfTestutil(t *testing.T) {
	AssertNoTransitiveDependency(t, ".", TransportImportForbidden, "helpers stay transport free")
}
