package classify

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/openmined/thumbtree/internal/errors"
)

// IgnoreFileName is the per-tree ignore file looked up at the source root.
const IgnoreFileName = ".thumbtreeignore"

// Rules are user-supplied patterns for files that should be mirrored as
// empty placeholders. Globs come from the config file, the gitignore-style
// lines from the IgnoreFileName file of the source tree.
type Rules struct {
	globs  []string
	ignore *gitignore.GitIgnore
}

// LoadRules compiles globs and, when present, sourceRoot/.thumbtreeignore.
// It returns nil when there is nothing to match.
func LoadRules(sourceRoot string, globs []string) (*Rules, error) {
	for _, g := range globs {
		if !doublestar.ValidatePattern(g) {
			return nil, errors.Configuration("ignore_patterns", "invalid pattern %q", g)
		}
	}

	var lines []string
	ignorePath := filepath.Join(sourceRoot, IgnoreFileName)
	file, err := os.Open(ignorePath)
	switch {
	case err == nil:
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" && !strings.HasPrefix(line, "#") {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, errors.Filesystem("read", ignorePath, err)
		}
		slog.Debug("classify loaded ignore file", "path", ignorePath, "rules", len(lines))
	case !os.IsNotExist(err):
		return nil, errors.Filesystem("open", ignorePath, err)
	}

	if len(globs) == 0 && len(lines) == 0 {
		return nil, nil
	}

	r := &Rules{globs: globs}
	if len(lines) > 0 {
		r.ignore = gitignore.CompileIgnoreLines(lines...)
	}
	return r, nil
}

// Match reports whether relPath, relative to the source root, is covered by
// any rule.
func (r *Rules) Match(relPath string) bool {
	slashed := filepath.ToSlash(relPath)
	for _, g := range r.globs {
		if ok, _ := doublestar.Match(g, slashed); ok {
			return true
		}
	}
	return r.ignore != nil && r.ignore.MatchesPath(slashed)
}
