// Package gitinfo reads the single fact the bisection driver needs from the
// user's repository: when HEAD was committed, used as the default --good
// cutoff.
package gitinfo

import (
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
)

// HeadCommitTime opens the git repository at or above dir and returns the
// author time of its HEAD commit.
func HeadCommitTime(dir string) (time.Time, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return time.Time{}, fmt.Errorf("open git repository at %s: %w", dir, err)
	}

	head, err := repo.Head()
	if err != nil {
		return time.Time{}, fmt.Errorf("resolve HEAD: %w", err)
	}

	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return time.Time{}, fmt.Errorf("load HEAD commit: %w", err)
	}

	return commit.Author.When, nil
}
