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

// layerRules lists, per directory prefix, the internal packages it must not
// import. The longest matching prefix wins.
var layerRules = map[string][]string{
	"internal/platform": {
		"internal/app", "internal/http", "internal/services", "internal/knowledge",
		"internal/billing", "internal/data", "internal/domain", "internal/temporalx",
	},
	"internal/domain": {
		"internal/app", "internal/http", "internal/services", "internal/knowledge",
		"internal/billing", "internal/data", "internal/platform", "internal/temporalx",
		"internal/observability", "internal/ratelimit",
	},
	"internal/data": {
		"internal/app", "internal/http", "internal/services", "internal/knowledge",
		"internal/billing", "internal/temporalx",
	},
	"internal/knowledge": {
		"internal/app", "internal/http", "internal/services", "internal/billing", "internal/temporalx",
	},
	"internal/billing": {
		"internal/app", "internal/http", "internal/services", "internal/knowledge", "internal/temporalx",
	},
	"internal/services": {
		"internal/app", "internal/http", "internal/temporalx",
	},
	"internal/temporalx": {
		"internal/app", "internal/http", "internal/services", "internal/data",
	},
	"internal/http": {
		"internal/app", "internal/temporalx", "internal/data/db",
	},
	"internal/http/handlers": {
		"internal/app", "internal/temporalx", "internal/data",
	},
}

func TestImportBoundaries(t *testing.T) {
	root, modulePath := moduleRoot(t)
	fset := token.NewFileSet()

	type violation struct {
		file string
		imp  string
		rule string
	}
	var violations []violation

	walkErr := filepath.WalkDir(filepath.Join(root, "internal"), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".go") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		disallowed := rulesFor(rel)
		if len(disallowed) == 0 {
			return nil
		}
		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		for _, spec := range f.Imports {
			imp, err := strconv.Unquote(spec.Path.Value)
			if err != nil || !strings.HasPrefix(imp, modulePath+"/") {
				continue
			}
			local := strings.TrimPrefix(imp, modulePath+"/")
			for _, bad := range disallowed {
				if within(local, bad) {
					violations = append(violations, violation{file: rel, imp: imp, rule: bad})
					break
				}
			}
		}
		return nil
	})
	if walkErr != nil {
		t.Fatalf("walk internal/: %v", walkErr)
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

// Commands go through internal/app so every process shares one wiring path.
func TestCommandsOnlyUseApp(t *testing.T) {
	root, modulePath := moduleRoot(t)
	allowed := []string{"internal/app", "internal/temporalx/knowledgerefresh"}
	fset := token.NewFileSet()

	var bad []string
	walkErr := filepath.WalkDir(filepath.Join(root, "cmd"), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".go") {
			return nil
		}
		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		for _, spec := range f.Imports {
			imp, _ := strconv.Unquote(spec.Path.Value)
			if !strings.HasPrefix(imp, modulePath+"/") {
				continue
			}
			local := strings.TrimPrefix(imp, modulePath+"/")
			ok := false
			for _, a := range allowed {
				if local == a {
					ok = true
				}
			}
			if !ok {
				rel, _ := filepath.Rel(root, path)
				bad = append(bad, fmt.Sprintf("%s imports %q", filepath.ToSlash(rel), imp))
			}
		}
		return nil
	})
	if walkErr != nil {
		t.Fatalf("walk cmd/: %v", walkErr)
	}
	if len(bad) > 0 {
		t.Fatalf("commands must wire through internal/app:\n%s", strings.Join(bad, "\n"))
	}
}

func rulesFor(rel string) []string {
	best := ""
	for prefix := range layerRules {
		if within(filepath.ToSlash(filepath.Dir(rel)), prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return nil
	}
	return layerRules[best]
}

func within(pkg, prefix string) bool {
	return pkg == prefix || strings.HasPrefix(pkg, prefix+"/")
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
