package git

import (
	gogit "github.com/go-git/go-git/v5"
)

// Inspect reads the origin URL and checked-out branch of a local clone
// through go-git. Missing repositories, remotes, or an unborn/detached HEAD
// yield empty strings rather than errors; registration falls back to the
// caller's values.
func Inspect(path string) (remoteURL, branch string) {
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return "", ""
	}

	if remote, err := repo.Remote("origin"); err == nil {
		if urls := remote.Config().URLs; len(urls) > 0 {
			remoteURL = urls[0]
		}
	}

	if head, err := repo.Head(); err == nil && head.Name().IsBranch() {
		branch = head.Name().Short()
	}

	return remoteURL, branch
}
