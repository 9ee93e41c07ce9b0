package instructions

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultDocNames is used when the model profile names no project docs.
// At each directory level the first existing name wins.
var DefaultDocNames = []string{"AGENTS.override.md", "AGENTS.md"}

// MaxProjectDocsBytes caps the concatenated project docs.
const MaxProjectDocsBytes = 256 * 1024

// FindGitRoot walks up from dir to the directory holding .git (a directory,
// or a file for worktrees). It returns "" when there is none.
func FindGitRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dir, err)
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && (info.IsDir() || info.Mode().IsRegular()) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// LoadProjectDocs collects one instruction file per directory level from
// rootDir down to targetDir, labelled with its path relative to rootDir.
// Docs that would push the total past MaxProjectDocsBytes are skipped along
// with everything below them. No docs is not an error.
func LoadProjectDocs(rootDir, targetDir string, names []string) (string, error) {
	if len(names) == 0 {
		names = DefaultDocNames
	}
	dirs, err := levels(rootDir, targetDir)
	if err != nil {
		return "", err
	}

	var parts []string
	total := 0
	for _, dir := range dirs {
		name, content, err := firstDoc(dir, names)
		if err != nil {
			return "", err
		}
		if content == "" {
			continue
		}
		rel, err := filepath.Rel(dirs[0], filepath.Join(dir, name))
		if err != nil {
			rel = name
		}
		entry := fmt.Sprintf("--- %s ---\n%s", rel, strings.TrimSpace(content))
		if total+len(entry) > MaxProjectDocsBytes {
			break
		}
		parts = append(parts, entry)
		total += len(entry)
	}
	return strings.Join(parts, "\n\n"), nil
}

// ForWorkspace loads project docs for cwd, starting at its git root when
// there is one.
func ForWorkspace(cwd string, names []string) (string, error) {
	root, err := FindGitRoot(cwd)
	if err != nil {
		return "", err
	}
	if root == "" {
		root = cwd
	}
	return LoadProjectDocs(root, cwd, names)
}

// levels lists rootDir and every directory below it on the way to targetDir.
func levels(rootDir, targetDir string) ([]string, error) {
	root, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", rootDir, err)
	}
	target, err := filepath.Abs(targetDir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", targetDir, err)
	}
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%s is not under %s", target, root)
	}

	dirs := []string{root}
	if rel == "." {
		return dirs, nil
	}
	cur := root
	for _, seg := range strings.Split(rel, string(filepath.Separator)) {
		cur = filepath.Join(cur, seg)
		dirs = append(dirs, cur)
	}
	return dirs, nil
}

func firstDoc(dir string, names []string) (string, string, error) {
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", "", fmt.Errorf("read %s: %w", path, err)
		}
		return name, string(data), nil
	}
	return "", "", nil
}
