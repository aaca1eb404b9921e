package tracker

import (
	"os"
	"path/filepath"
	"strings"
)

// gitInfo reads the current branch and commit from .git/HEAD without
// shelling out. Best effort: a missing or unusual repository layout
// yields empty strings, never an error.
func gitInfo(dir string) (branch, commit string) {
	if dir == "" {
		return "", ""
	}

	gitDir := findGitDir(dir)
	if gitDir == "" {
		return "", ""
	}

	head, err := os.ReadFile(filepath.Join(gitDir, "HEAD"))
	if err != nil {
		return "", ""
	}

	content := strings.TrimSpace(string(head))
	if ref, ok := strings.CutPrefix(content, "ref: "); ok {
		branch = strings.TrimPrefix(ref, "refs/heads/")
		if sha, err := os.ReadFile(filepath.Join(gitDir, ref)); err == nil {
			commit = strings.TrimSpace(string(sha))
		} else {
			// Packed refs keep the sha in one shared file.
			commit = packedRef(gitDir, ref)
		}
		return branch, commit
	}

	// Detached HEAD: the file holds the commit itself.
	return "", content
}

// findGitDir walks up from dir looking for a .git directory.
func findGitDir(dir string) string {
	for {
		candidate := filepath.Join(dir, ".git")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func packedRef(gitDir, ref string) string {
	data, err := os.ReadFile(filepath.Join(gitDir, "packed-refs"))
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		sha, name, ok := strings.Cut(strings.TrimSpace(line), " ")
		if ok && name == ref {
			return sha
		}
	}
	return ""
}
