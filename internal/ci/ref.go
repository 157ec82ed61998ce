package ci

import "strings"

const (
	branchRefPrefix = "refs/heads/"
	tagRefPrefix    = "refs/tags/"
)

// ParseRef splits a full git ref into its short name and kind.
// A ref without a known prefix is treated as a branch name.
func ParseRef(ref string) (name string, tag bool) {
	switch {
	case strings.HasPrefix(ref, tagRefPrefix):
		return strings.TrimPrefix(ref, tagRefPrefix), true
	case strings.HasPrefix(ref, branchRefPrefix):
		return strings.TrimPrefix(ref, branchRefPrefix), false
	default:
		return ref, false
	}
}
