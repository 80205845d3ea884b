package jsonfas

import (
	"context"
	"sort"
)

// Group is one approved group membership of a [User].
type Group struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// User is the person record returned by the account service. It is fetched in a
// single round trip and treated as immutable for the lifetime of an [Identity].
type User struct {
	ID                  int64   `json:"id"`
	Username            string  `json:"username"`
	HumanName           string  `json:"human_name"`
	Email               string  `json:"email,omitempty"`
	ApprovedMemberships []Group `json:"approved_memberships"`

	// Password is the legacy stored hash. Only some deployments expose it; it is
	// consulted solely by [Provider.ValidatePassword].
	Password string `json:"password,omitempty"`
}

// GroupNames returns the names of the approved memberships, sorted.
func (u *User) GroupNames() []string {
	if u == nil || len(u.ApprovedMemberships) == 0 {
		return []string{}
	}
	names := make([]string, 0, len(u.ApprovedMemberships))
	seen := make(map[string]struct{}, len(u.ApprovedMemberships))
	for _, g := range u.ApprovedMemberships {
		if _, ok := seen[g.Name]; ok {
			continue
		}
		seen[g.Name] = struct{}{}
		names = append(names, g.Name)
	}
	sort.Strings(names)
	return names
}

// GroupIDs returns the ids of the approved memberships, sorted.
func (u *User) GroupIDs() []int64 {
	if u == nil || len(u.ApprovedMemberships) == 0 {
		return []int64{}
	}
	ids := make([]int64, 0, len(u.ApprovedMemberships))
	seen := make(map[int64]struct{}, len(u.ApprovedMemberships))
	for _, g := range u.ApprovedMemberships {
		if _, ok := seen[g.ID]; ok {
			continue
		}
		seen[g.ID] = struct{}{}
		ids = append(ids, g.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// AccountSession is one request's conversation with the account service. It owns
// the visit key the service knows it by, which the service may rotate on any call.
//
// Errors returned must wrap [ErrServiceUnavailable] for transport failures and
// [ErrAuthFailed] for rejected credentials; protocol failures are [*ServiceError].
type AccountSession interface {
	// Login sends the empty-method request that binds the visit key to the
	// session's username and password.
	Login(ctx context.Context) error
	// ViewUser fetches the person bound to the visit key. A nil user with a nil
	// error means the service knows no person for this session.
	ViewUser(ctx context.Context) (*User, error)
	// Logout unlinks the visit key from its person.
	Logout(ctx context.Context) error
	// SessionID returns the visit key as currently known to the service.
	SessionID() string
}

// AccountService is the process-wide account service client.
type AccountService interface {
	// NewSession opens a request-scoped session. visitKey, username and password
	// may each be empty.
	NewSession(visitKey, username, password string) AccountSession
	// PersonByUsername looks a person up with the privileged service credentials.
	PersonByUsername(ctx context.Context, username string) (*User, error)
}

// PasswordValidator checks a plaintext password against a user's stored
// credentials. Implement it to check passwords against an external backend.
type PasswordValidator interface {
	ValidatePassword(user *User, username, password string) bool
}

// PasswordValidatorFunc adapts a function to [PasswordValidator].
type PasswordValidatorFunc func(user *User, username, password string) bool

// ValidatePassword calls f.
func (f PasswordValidatorFunc) ValidatePassword(user *User, username, password string) bool {
	return f(user, username, password)
}
