package scout

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// skipDirs are never descended into while surveying a repository.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	".mend":        true,
}

// maxRelevantFiles caps the context report so a huge repository does
// not flood downstream consumers.
const maxRelevantFiles = 50

// RepoScout is a filesystem-probing Scout: it surveys the repository
// tree directly instead of delegating to an external analyzer.
type RepoScout struct {
	RepoRoot string
}

// NewRepoScout returns a scout rooted at repoRoot.
func NewRepoScout(repoRoot string) *RepoScout {
	return &RepoScout{RepoRoot: repoRoot}
}

// QueryContext walks the tree and ranks files by keyword overlap with
// the task description.
func (s *RepoScout) QueryContext(ctx context.Context, taskDescription string) (*ContextReport, error) {
	keywords := extractKeywords(taskDescription)

	type scored struct {
		path  string
		score int
	}
	var files []scored
	var risks []RiskZone

	err := filepath.WalkDir(s.RepoRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := d.Name()
		if d.IsDir() {
			if skipDirs[name] || (strings.HasPrefix(name, ".") && path != s.RepoRoot) {
				return filepath.SkipDir
			}
			return nil
		}

		rel, rerr := filepath.Rel(s.RepoRoot, path)
		if rerr != nil {
			return rerr
		}
		score := scorePath(rel, keywords)
		if score > 0 {
			files = append(files, scored{path: rel, score: score})
		}
		if isRiskPath(rel) {
			risks = append(risks, RiskZone{Path: rel, Reason: riskReason(rel)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(files, func(i, j int) bool {
		if files[i].score != files[j].score {
			return files[i].score > files[j].score
		}
		return files[i].path < files[j].path
	})
	if len(files) > maxRelevantFiles {
		files = files[:maxRelevantFiles]
	}

	report := &ContextReport{
		SchemaVersion: SchemaVersion,
		Conventions:   detectConventions(s.RepoRoot),
		RiskZones:     risks,
	}
	for _, f := range files {
		report.RelevantFiles = append(report.RelevantFiles, f.path)
	}
	return report, nil
}

// QueryCommands infers build and test commands from the build files
// present at the repository root.
func (s *RepoScout) QueryCommands(ctx context.Context) (*CommandReport, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	report := &CommandReport{SchemaVersion: SchemaVersion}
	exists := func(name string) bool {
		_, err := os.Stat(filepath.Join(s.RepoRoot, name))
		return err == nil
	}

	switch {
	case exists("go.mod"):
		report.BuildCommands = []string{"go build ./..."}
		report.TestCommands = []string{"go test ./..."}
	case exists("package.json"):
		report.BuildCommands = []string{"npm run build"}
		report.TestCommands = []string{"npm test"}
		report.Prerequisites = []string{"npm install"}
	case exists("Cargo.toml"):
		report.BuildCommands = []string{"cargo build"}
		report.TestCommands = []string{"cargo test"}
	case exists("pyproject.toml"), exists("setup.py"):
		report.TestCommands = []string{"python -m pytest"}
	}
	if exists("Makefile") {
		report.BuildCommands = append(report.BuildCommands, "make")
	}
	return report, nil
}

func extractKeywords(description string) []string {
	var keywords []string
	for _, w := range strings.Fields(strings.ToLower(description)) {
		w = strings.Trim(w, ".,:;!?\"'()[]")
		if len(w) >= 4 {
			keywords = append(keywords, w)
		}
	}
	return keywords
}

func scorePath(rel string, keywords []string) int {
	lower := strings.ToLower(rel)
	score := 0
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			score++
		}
	}
	return score
}

func isRiskPath(rel string) bool {
	base := filepath.Base(rel)
	switch base {
	case "go.mod", "go.sum", "package.json", "Cargo.toml", "Makefile", "Dockerfile":
		return true
	}
	return strings.HasSuffix(base, ".sql") || strings.Contains(rel, "migration")
}

func riskReason(rel string) string {
	base := filepath.Base(rel)
	switch {
	case strings.HasSuffix(base, ".sql") || strings.Contains(rel, "migration"):
		return "schema or migration file"
	default:
		return "build definition"
	}
}

func detectConventions(repoRoot string) []string {
	var conventions []string
	if _, err := os.Stat(filepath.Join(repoRoot, "go.mod")); err == nil {
		conventions = append(conventions, "Go module; gofmt formatting assumed")
	}
	if _, err := os.Stat(filepath.Join(repoRoot, ".editorconfig")); err == nil {
		conventions = append(conventions, "editorconfig present")
	}
	if _, err := os.Stat(filepath.Join(repoRoot, "internal")); err == nil {
		conventions = append(conventions, "internal/ package layout")
	}
	return conventions
}
