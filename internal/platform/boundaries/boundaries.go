// Package boundaries enforces the layering rules of bounded-context modules:
// domain code stays pure, application code depends only on its own module's
// domain and ports, and no module imports another module's packages.
package boundaries

import (
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

type Violation struct {
	File   string
	Line   int
	Import string
	Rule   string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s:%d imports %q (%s)", v.File, v.Line, v.Import, v.Rule)
}

// Rules names the module path and the third-party packages each layer may use.
type Rules struct {
	ModulePath        string
	DomainLibraries   []string
	AppLibraries      []string
	ContractsPrefixes []string
}

// DefaultRules returns the rules the pollhub tree is held to.
func DefaultRules() Rules {
	return Rules{
		ModulePath:        "pollhub",
		DomainLibraries:   []string{"golang.org/x/text"},
		AppLibraries:      []string{"go.opentelemetry.io/otel"},
		ContractsPrefixes: []string{"pollhub/contracts"},
	}
}

// Check walks contextsDir (laid out as <context>/<module>/<layer>/...) and
// returns every violation, sorted by file and line. Test files are skipped.
func Check(contextsDir string, rules Rules) ([]Violation, error) {
	var violations []Violation
	err := filepath.WalkDir(contextsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		rel, err := filepath.Rel(contextsDir, path)
		if err != nil {
			return err
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) < 3 {
			return nil
		}
		modulePrefix := fmt.Sprintf("%s/contexts/%s/%s", rules.ModulePath, parts[0], parts[1])
		found, err := checkFile(path, filepath.ToSlash(rel), parts[2], modulePrefix, rules)
		if err != nil {
			return err
		}
		violations = append(violations, found...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", contextsDir, err)
	}

	sort.SliceStable(violations, func(i, j int) bool {
		if violations[i].File == violations[j].File {
			if violations[i].Line == violations[j].Line {
				return violations[i].Import < violations[j].Import
			}
			return violations[i].Line < violations[j].Line
		}
		return violations[i].File < violations[j].File
	})
	return violations, nil
}

func checkFile(path string, rel string, layer string, modulePrefix string, rules Rules) ([]Violation, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
	if err != nil {
		return []Violation{{File: rel, Line: 1, Rule: "file must parse"}}, nil
	}

	contextsPrefix := rules.ModulePath + "/contexts/"
	internalPrefix := rules.ModulePath + "/internal/"

	var violations []Violation
	for _, imp := range file.Imports {
		importPath := strings.Trim(imp.Path.Value, "\"")
		line := fset.Position(imp.Pos()).Line
		add := func(rule string) {
			violations = append(violations, Violation{File: rel, Line: line, Import: importPath, Rule: rule})
		}

		if strings.HasPrefix(importPath, contextsPrefix) && !hasPrefix(importPath, modulePrefix) {
			add("cross-module imports are forbidden")
		}

		switch layer {
		case "domain":
			if strings.Contains(importPath, "/adapters/") {
				add("domain must not import adapters")
			}
			if strings.HasPrefix(importPath, internalPrefix) {
				add("domain must not import runtime infrastructure")
			}
			allowed := append([]string{modulePrefix + "/domain"}, rules.DomainLibraries...)
			if !isStdlib(importPath, rules.ModulePath) && !isAllowed(importPath, allowed) {
				add("domain import is outside explicit allowlist")
			}
		case "application":
			if strings.Contains(importPath, "/adapters/") {
				add("application must not import adapters")
			}
			if strings.HasPrefix(importPath, internalPrefix) {
				add("application must not import runtime infrastructure")
			}
			allowed := []string{
				modulePrefix + "/application",
				modulePrefix + "/domain",
				modulePrefix + "/ports",
			}
			allowed = append(allowed, rules.ContractsPrefixes...)
			allowed = append(allowed, rules.AppLibraries...)
			if !isStdlib(importPath, rules.ModulePath) && !isAllowed(importPath, allowed) {
				add("application import is outside explicit allowlist")
			}
		}
	}
	return violations, nil
}

func hasPrefix(path string, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func isAllowed(importPath string, allowedPrefixes []string) bool {
	for _, p := range allowedPrefixes {
		if hasPrefix(importPath, p) {
			return true
		}
	}
	return false
}

func isStdlib(importPath string, modulePath string) bool {
	if hasPrefix(importPath, modulePath) {
		return false
	}
	first, _, _ := strings.Cut(importPath, "/")
	return !strings.Contains(first, ".")
}
