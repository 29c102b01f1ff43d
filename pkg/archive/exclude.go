package archive

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ExcludeSet matches relative paths against compiled glob patterns. A
// matching directory is pruned without descending; a matching non-directory
// is simply omitted.
type ExcludeSet struct {
	patterns []excludePattern
}

type excludePattern struct {
	pattern  string
	dirOnly  bool // pattern ended with /, matches directories only
	hasSlash bool // pattern contains a slash, so match against the full path
	regex    *regexp.Regexp
}

// CompileExcludes builds an ExcludeSet from inline patterns plus pattern
// files (one pattern per line; blank lines and # comments skipped). Missing
// pattern files are ignored. Returns nil when there is nothing to match.
func CompileExcludes(patterns []string, files []string) (*ExcludeSet, error) {
	set := &ExcludeSet{}
	for _, pattern := range patterns {
		if err := set.add(pattern); err != nil {
			return nil, err
		}
	}
	for _, file := range files {
		f, err := os.Open(file)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read exclude file %s: %w", file, err)
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if err := set.add(line); err != nil {
				f.Close()
				return nil, err
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return nil, fmt.Errorf("read exclude file %s: %w", file, err)
		}
		f.Close()
	}
	if len(set.patterns) == 0 {
		return nil, nil
	}
	return set, nil
}

func (s *ExcludeSet) add(pattern string) error {
	p := excludePattern{}
	if strings.HasSuffix(pattern, "/") {
		p.dirOnly = true
		pattern = strings.TrimRight(pattern, "/")
	}
	p.hasSlash = strings.Contains(pattern, "/")
	p.pattern = pattern

	if strings.Contains(pattern, "**") {
		re, err := regexp.Compile(globToRegex(pattern))
		if err != nil {
			return fmt.Errorf("exclude pattern %q: %w", pattern, err)
		}
		p.regex = re
	} else if _, err := filepath.Match(pattern, ""); err != nil {
		return fmt.Errorf("exclude pattern %q: %w", pattern, err)
	}

	s.patterns = append(s.patterns, p)
	return nil
}

// Match reports whether the slash-separated relative path is excluded.
// Patterns without a slash match the final path component; patterns with a
// slash match the full relative path.
func (s *ExcludeSet) Match(rel string, isDir bool) bool {
	if s == nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	base := rel
	if i := strings.LastIndexByte(rel, '/'); i >= 0 {
		base = rel[i+1:]
	}
	for i := range s.patterns {
		p := &s.patterns[i]
		if p.dirOnly && !isDir {
			continue
		}
		target := base
		if p.hasSlash {
			target = rel
		}
		if p.match(target) {
			return true
		}
	}
	return false
}

func (p *excludePattern) match(target string) bool {
	if p.regex != nil {
		return p.regex.MatchString(target)
	}
	matched, _ := filepath.Match(p.pattern, target)
	return matched
}

// globToRegex compiles a pattern containing ** into an anchored regular
// expression where * and ? stop at path separators and ** crosses them.
func globToRegex(pattern string) string {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		ch := pattern[i]
		if ch == '*' {
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				if i+2 < len(pattern) && pattern[i+2] == '/' {
					// Globstar directory segment: zero or more path segments.
					b.WriteString("(?:.*/)?")
					i += 2
				} else {
					b.WriteString(".*")
					i++
				}
				continue
			}
			b.WriteString("[^/]*")
			continue
		}
		if ch == '?' {
			b.WriteString("[^/]")
			continue
		}
		if strings.ContainsRune(`.+()|[]{}^$\`, rune(ch)) {
			b.WriteByte('\\')
		}
		b.WriteByte(ch)
	}
	b.WriteString("$")
	return b.String()
}
