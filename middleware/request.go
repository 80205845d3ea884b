package middleware

import (
	"net/http"

	"github.com/MrEthical07/jsonfas"
)

// Request is a [jsonfas.RequestContext] over one net/http exchange.
//
// Params are read from the parsed form (query and body). Cookies written with
// SetCookie are sent to the client and are visible to later Cookie calls on the
// same Request.
type Request struct {
	w      http.ResponseWriter
	r      *http.Request
	cookie jsonfas.CookieConfig

	cookies map[string]string
	flags   map[string]string
}

var _ jsonfas.RequestContext = (*Request)(nil)

// NewRequest wraps w and r. Cookies are written with the attributes in cookie.
func NewRequest(w http.ResponseWriter, r *http.Request, cookie jsonfas.CookieConfig) *Request {
	// A malformed body leaves the query params usable.
	_ = r.ParseForm()
	return &Request{
		w:       w,
		r:       r,
		cookie:  cookie,
		cookies: make(map[string]string),
		flags:   make(map[string]string),
	}
}

func (q *Request) Cookie(name string) (string, bool) {
	if v, ok := q.cookies[name]; ok {
		return v, true
	}
	c, err := q.r.Cookie(name)
	if err != nil {
		return "", false
	}
	return c.Value, true
}

func (q *Request) SetCookie(name, value string) {
	q.cookies[name] = value
	http.SetCookie(q.w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     q.cookie.Path,
		Secure:   q.cookie.Secure,
		HttpOnly: q.cookie.HTTPOnly,
		SameSite: q.cookie.SameSite,
	})
}

func (q *Request) Header(name string) string {
	return q.r.Header.Get(name)
}

func (q *Request) Param(name string) (string, bool) {
	values, ok := q.r.Form[name]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func (q *Request) DeleteParam(name string) {
	q.r.Form.Del(name)
	if q.r.PostForm != nil {
		q.r.PostForm.Del(name)
	}
}

func (q *Request) SetFlag(name, value string) {
	q.flags[name] = value
}

// Flag returns a flag set during identity resolution, such as
// [jsonfas.FlagFailureReason].
func (q *Request) Flag(name string) (string, bool) {
	v, ok := q.flags[name]
	return v, ok
}

// HTTPRequest returns the wrapped request.
func (q *Request) HTTPRequest() *http.Request {
	return q.r
}
