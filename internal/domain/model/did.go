package model

import (
	"regexp"
	"strings"
)

var didPattern = regexp.MustCompile(`did:[a-z]+:[a-zA-Z0-9._%:-]+`)

// ExtractDID returns the first DID literal embedded in s, e.g. the authority
// of an at:// URI. ok is false when s carries no DID.
func ExtractDID(s string) (did string, ok bool) {
	did = didPattern.FindString(s)
	did = strings.TrimRight(did, ":")
	return did, did != ""
}

// IsDID reports whether s is a bare DID.
func IsDID(s string) bool {
	return strings.HasPrefix(s, "did:") && didPattern.FindString(s) == s
}
