// Package session carries the acting identity through an operation. It
// replaces a module-global "current user" cache: a Session is built per
// request (or per worker run) and thrown away afterwards.
package session

import (
	"errors"
	"strings"
)

var ErrNoIdentity = errors.New("no current identity")

const (
	householdNamespace = "household"
	referenceNamespace = "references"
	sharedKey          = "shared"
)

// Session resolves storage keys for one identity. Identities on the shared
// allow-list collapse onto a single household so designated members see the
// same ledger; everyone else gets a private per-identity key.
type Session struct {
	identity string
	shared   map[string]bool
}

func New(identity string, sharedIdentities []string) *Session {
	shared := make(map[string]bool, len(sharedIdentities))
	for _, id := range sharedIdentities {
		id = normalize(id)
		if id != "" {
			shared[id] = true
		}
	}
	return &Session{identity: normalize(identity), shared: shared}
}

// Identity returns the current identity, or ErrNoIdentity when the session
// was built without one.
func (s *Session) Identity() (string, error) {
	if s == nil || s.identity == "" {
		return "", ErrNoIdentity
	}
	return s.identity, nil
}

// HouseholdKey is the storage key for the aggregate document.
func (s *Session) HouseholdKey() (string, error) {
	return s.key(householdNamespace)
}

// ReferenceKey is the storage key for the reference budget set. It lives in
// its own namespace but collapses shared identities the same way.
func (s *Session) ReferenceKey() (string, error) {
	return s.key(referenceNamespace)
}

func (s *Session) key(namespace string) (string, error) {
	id, err := s.Identity()
	if err != nil {
		return "", err
	}
	if s.shared[id] {
		return namespace + "-" + sharedKey, nil
	}
	return namespace + "-" + sanitize(id), nil
}

// ReferenceKeyFor maps a household storage key to the key of its reference
// set. The sync worker only sees household keys, so the mapping has to be
// derivable without the originating identity.
func ReferenceKeyFor(householdKey string) string {
	return referenceNamespace + strings.TrimPrefix(householdKey, householdNamespace)
}

func normalize(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

// sanitize keeps keys safe for document ids and file names.
func sanitize(identity string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, identity)
}
