// Package credential tracks which account IDs each access token authorises.
package credential

import (
	"maps"
	"slices"
)

// Registry maps access tokens to the ordered set of account IDs they authorise.
// A token whose set becomes empty through Revoke is removed.
//
// Registry is not safe for concurrent use; the owning store serialises access.
type Registry struct {
	tokens    map[string][]string
	byAccount map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		tokens:    make(map[string][]string),
		byAccount: make(map[string]string),
	}
}

// NewRegistryFromMap builds a registry from a token -> account IDs map, typically read from a snapshot.
// Tokens without accounts are dropped.
func NewRegistryFromMap(tokens map[string][]string) *Registry {
	r := NewRegistry()
	for token, accountIDs := range tokens {
		for _, accountID := range accountIDs {
			r.Authorize(token, accountID)
		}
	}

	return r
}

// Register inserts token with an empty authorised set if it is absent.
func (r *Registry) Register(token string) {
	if _, exists := r.tokens[token]; exists {
		return
	}

	r.tokens[token] = []string{}
}

// Authorize adds accountID to the token's set, registering the token if needed.
// An account ID already authorised by a different token is moved to this token.
func (r *Registry) Authorize(token string, accountID string) {
	if owner, exists := r.byAccount[accountID]; exists {
		if owner == token {
			return
		}

		r.Revoke(owner, accountID)
	}

	r.Register(token)
	r.tokens[token] = append(r.tokens[token], accountID)
	r.byAccount[accountID] = token
}

// Revoke removes accountID from the token's set and removes the token once its set is empty.
// It reports whether the token was removed.
func (r *Registry) Revoke(token string, accountID string) bool {
	accountIDs, exists := r.tokens[token]
	if !exists {
		return false
	}

	if r.byAccount[accountID] == token {
		delete(r.byAccount, accountID)
	}

	accountIDs = slices.DeleteFunc(accountIDs, func(id string) bool {
		return id == accountID
	})

	if len(accountIDs) == 0 {
		delete(r.tokens, token)
		return true
	}

	r.tokens[token] = accountIDs

	return false
}

// CredentialFor returns the token authorising accountID.
func (r *Registry) CredentialFor(accountID string) (string, bool) {
	token, exists := r.byAccount[accountID]
	return token, exists
}

// AccountIDs returns a copy of the account IDs authorised by token.
func (r *Registry) AccountIDs(token string) []string {
	return slices.Clone(r.tokens[token])
}

// Tokens returns all registered tokens in sorted order.
func (r *Registry) Tokens() []string {
	return slices.Sorted(maps.Keys(r.tokens))
}

func (r *Registry) Len() int {
	return len(r.tokens)
}

func (r *Registry) Clear() {
	clear(r.tokens)
	clear(r.byAccount)
}

// Export returns a deep copy of the non-empty token -> account IDs mapping.
func (r *Registry) Export() map[string][]string {
	out := make(map[string][]string, len(r.tokens))
	for token, accountIDs := range r.tokens {
		if len(accountIDs) == 0 {
			continue
		}

		out[token] = slices.Clone(accountIDs)
	}

	return out
}
