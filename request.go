package jsonfas

import "sync"

// Request flags set through [RequestContext.SetFlag] for the rendering layer.
const (
	// FlagFailureReason carries why an identity resolved to no user.
	FlagFailureReason = "fas_identity_failure_reason"
	// FlagProvidedUsername carries the username taken from the client certificate.
	FlagProvidedUsername = "fas_provided_username"
	// FlagLoginAttempted is set when the request completed an interactive login.
	FlagLoginAttempted = "login_attempted"
)

// FailureBadCSRF is the [FlagFailureReason] value for a missing or wrong token.
const FailureBadCSRF = "bad_csrf"

// RequestContext is the slice of the hosting framework's request and response
// that identity resolution reads and writes. The identity layer never touches
// framework globals; everything flows through this interface.
type RequestContext interface {
	Cookie(name string) (string, bool)
	SetCookie(name, value string)
	Header(name string) string
	Param(name string) (string, bool)
	DeleteParam(name string)
	SetFlag(name, value string)
}

// CookieWrite records one [MemoryRequest.SetCookie] call.
type CookieWrite struct {
	Name  string
	Value string
}

// MemoryRequest is an in-memory [RequestContext] for hosts that are not net/http
// servers, and for tests. The zero value is ready to use.
type MemoryRequest struct {
	mu      sync.Mutex
	cookies map[string]string
	headers map[string]string
	params  map[string]string
	flags   map[string]string
	writes  []CookieWrite
}

// NewMemoryRequest returns a request carrying the given headers and params.
func NewMemoryRequest(headers, params map[string]string) *MemoryRequest {
	r := &MemoryRequest{}
	for k, v := range headers {
		r.SetHeader(k, v)
	}
	for k, v := range params {
		r.SetParam(k, v)
	}
	return r
}

func (r *MemoryRequest) Cookie(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.cookies[name]
	return v, ok
}

// SetCookie stores the cookie and records the write.
func (r *MemoryRequest) SetCookie(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cookies == nil {
		r.cookies = make(map[string]string)
	}
	r.cookies[name] = value
	r.writes = append(r.writes, CookieWrite{Name: name, Value: value})
}

func (r *MemoryRequest) Header(name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.headers[name]
}

func (r *MemoryRequest) SetHeader(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[name] = value
}

func (r *MemoryRequest) Param(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.params[name]
	return v, ok
}

func (r *MemoryRequest) SetParam(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.params == nil {
		r.params = make(map[string]string)
	}
	r.params[name] = value
}

func (r *MemoryRequest) DeleteParam(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.params, name)
}

func (r *MemoryRequest) SetFlag(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.flags == nil {
		r.flags = make(map[string]string)
	}
	r.flags[name] = value
}

// Flag returns a flag previously set with SetFlag.
func (r *MemoryRequest) Flag(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.flags[name]
	return v, ok
}

// CookieWrites returns every SetCookie call in order.
func (r *MemoryRequest) CookieWrites() []CookieWrite {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CookieWrite, len(r.writes))
	copy(out, r.writes)
	return out
}

type nopRequest struct{}

func (nopRequest) Cookie(string) (string, bool) { return "", false }
func (nopRequest) SetCookie(string, string)     {}
func (nopRequest) Header(string) string         { return "" }
func (nopRequest) Param(string) (string, bool)  { return "", false }
func (nopRequest) DeleteParam(string)           {}
func (nopRequest) SetFlag(string, string)       {}
