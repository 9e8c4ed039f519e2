// Package session extracts the session token from a request's cookie header.
package session

import (
	"net/http"
	"strings"
)

// TokenCookie is the cookie carrying the identity provider's JWT.
const TokenCookie = "token"

type cookie struct {
	value string
	set   bool
}

// Cookies maps cookie names to raw values. Entries written without "=" are present but have
// no value.
type Cookies map[string]cookie

// Value returns the raw value of name. ok is false when the cookie is absent or has no value.
func (c Cookies) Value(name string) (string, bool) {
	v, ok := c[name]
	if !ok || !v.set {
		return "", false
	}
	return v.value, true
}

// Has reports whether name appeared in the header, with or without a value.
func (c Cookies) Has(name string) bool {
	_, ok := c[name]
	return ok
}

// Token returns the session token. A missing or value-less token cookie means no credential.
func (c Cookies) Token() (string, bool) {
	return c.Value(TokenCookie)
}

// Parse reads the cookie header from headers. It returns false when no cookie header is
// present at all, which is different from a header that yields no cookies.
func Parse(headers map[string]string) (Cookies, bool) {
	raw, ok := lookup(headers, "Cookie")
	if !ok {
		return nil, false
	}
	return parse(raw), true
}

// FromRequest parses the cookie header of r.
func FromRequest(r *http.Request) (Cookies, bool) {
	values := r.Header.Values("Cookie")
	if len(values) == 0 {
		return nil, false
	}
	return parse(strings.Join(values, ";")), true
}

func parse(raw string) Cookies {
	cookies := make(Cookies)
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		name, value, found := strings.Cut(entry, "=")
		cookies[name] = cookie{value: value, set: found}
	}
	return cookies
}

// lookup finds a header by name. API Gateway forwards header names as the client sent
// them, so an exact match is tried before a case-insensitive one.
func lookup(headers map[string]string, name string) (string, bool) {
	if v, ok := headers[name]; ok {
		return v, true
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}
