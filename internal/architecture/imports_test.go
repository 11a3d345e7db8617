package architecture_test

import (
	"bufio"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestImportBoundaries(t *testing.T) {
	root, modulePath := moduleRoot(t)

	type violation struct {
		file string
		imp  string
		rule string
	}
	var violations []violation

	err := walkGoFiles(root, func(rel string, imports []string) {
		disallowed := disallowedImports(modulePath, layerFor(rel))
		for _, imp := range imports {
			for _, bad := range disallowed {
				if imp == bad || strings.HasPrefix(imp, bad+"/") {
					violations = append(violations, violation{file: rel, imp: imp, rule: bad})
					break
				}
			}
		}
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}

	if len(violations) > 0 {
		var b strings.Builder
		b.WriteString("import boundary violations:\n")
		for _, v := range violations {
			fmt.Fprintf(&b, "- %s imports %q (disallowed: %q)\n", v.file, v.imp, v.rule)
		}
		t.Fatal(b.String())
	}
}

func TestHTTPImportedOnlyByApp(t *testing.T) {
	root, modulePath := moduleRoot(t)
	httpPrefix := modulePath + "/internal/http"

	var offenders []string
	err := walkGoFiles(root, func(rel string, imports []string) {
		if strings.HasPrefix(rel, "internal/http/") || strings.HasPrefix(rel, "internal/app/") || strings.HasPrefix(rel, "cmd/") {
			return
		}
		for _, imp := range imports {
			if imp == httpPrefix || strings.HasPrefix(imp, httpPrefix+"/") {
				offenders = append(offenders, fmt.Sprintf("- %s imports %q", rel, imp))
				return
			}
		}
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(offenders) > 0 {
		t.Fatalf("internal/http is wired by internal/app only:\n%s", strings.Join(offenders, "\n"))
	}
}

func layerFor(rel string) string {
	switch {
	case strings.HasPrefix(rel, "internal/domain/"):
		return "domain"
	case strings.HasPrefix(rel, "internal/platform/"):
		return "platform"
	case strings.HasPrefix(rel, "internal/clients/"):
		return "clients"
	case strings.HasPrefix(rel, "internal/data/"):
		return "data"
	case strings.HasPrefix(rel, "internal/services/"):
		return "services"
	case strings.HasPrefix(rel, "internal/projection/"), strings.HasPrefix(rel, "internal/jobs/"):
		return "workers"
	default:
		return ""
	}
}

func disallowedImports(modulePath string, layer string) []string {
	in := func(dirs ...string) []string {
		out := make([]string, 0, len(dirs))
		for _, d := range dirs {
			out = append(out, modulePath+"/internal/"+d)
		}
		return out
	}
	switch layer {
	case "domain":
		return in("data", "services", "http", "jobs", "projection", "app", "clients", "messaging", "observability")
	case "platform":
		return in("data", "services", "http", "jobs", "projection", "app", "domain")
	case "clients":
		return in("data", "services", "http", "jobs", "projection", "app", "domain")
	case "data":
		return in("services", "http", "jobs", "projection", "app", "clients", "messaging")
	case "services":
		return in("http", "jobs", "projection", "app")
	case "workers":
		return in("http", "services", "app", "clients")
	default:
		return nil
	}
}

func moduleRoot(t *testing.T) (string, string) {
	t.Helper()
	start, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	root, err := findModuleRoot(start)
	if err != nil {
		t.Fatalf("find module root: %v", err)
	}
	modulePath, err := readModulePath(filepath.Join(root, "go.mod"))
	if err != nil {
		t.Fatalf("read module path: %v", err)
	}
	return root, modulePath
}

// walkGoFiles calls fn with the imports of every non-test Go file under
// internal/ and cmd/. Tests assemble whole stacks and are exempt.
func walkGoFiles(root string, fn func(rel string, imports []string)) error {
	fset := token.NewFileSet()
	for _, top := range []string{"internal", "cmd"} {
		err := filepath.WalkDir(filepath.Join(root, top), func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				switch d.Name() {
				case ".git", "vendor", "node_modules", ".gocache":
					return filepath.SkipDir
				default:
					return nil
				}
			}
			if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
			if err != nil {
				return err
			}
			var imports []string
			for _, spec := range f.Imports {
				if spec == nil || spec.Path == nil {
					continue
				}
				if imp, err := strconv.Unquote(spec.Path.Value); err == nil {
					imports = append(imports, imp)
				}
			}
			fn(filepath.ToSlash(rel), imports)
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func findModuleRoot(start string) (string, error) {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found from %s", start)
		}
		dir = parent
	}
}

func readModulePath(goModPath string) (string, error) {
	f, err := os.Open(goModPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		if !strings.HasPrefix(line, "module ") {
			continue
		}
		mp := strings.TrimSpace(strings.TrimPrefix(line, "module "))
		if mp == "" {
			return "", fmt.Errorf("empty module path in %s", goModPath)
		}
		return mp, nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("module path not found in %s", goModPath)
}
