package git

import (
	"regexp"
	"strings"
)

var (
	sshRemotePattern   = regexp.MustCompile(`^git@github\.com:([^/]+)/(.+?)(\.git)?$`)
	httpsRemotePattern = regexp.MustCompile(`^https://github\.com/([^/]+)/(.+?)(\.git)?(/)?$`)
)

// RemoteInfo is the owner/name pair of a GitHub remote.
type RemoteInfo struct {
	Owner string
	Name  string
}

// ParseGitHubRemote extracts {owner, name} from a GitHub remote URL. Both
// the SSH (git@github.com:owner/name) and HTTPS (https://github.com/owner/name)
// forms are recognized, with or without a trailing .git.
func ParseGitHubRemote(remoteURL string) (RemoteInfo, bool) {
	url := strings.TrimSpace(remoteURL)
	for _, pattern := range []*regexp.Regexp{sshRemotePattern, httpsRemotePattern} {
		if m := pattern.FindStringSubmatch(url); m != nil {
			return RemoteInfo{Owner: m[1], Name: m[2]}, true
		}
	}
	return RemoteInfo{}, false
}

// SlugFromRemote derives a repo slug from the basename of a remote URL,
// stripping a trailing .git. Works for SSH, HTTPS and plain path forms.
func SlugFromRemote(remoteURL string) string {
	s := strings.TrimRight(strings.TrimSpace(remoteURL), "/")
	s = strings.TrimSuffix(s, ".git")
	if i := strings.LastIndexAny(s, "/:"); i >= 0 {
		s = s[i+1:]
	}
	return s
}
