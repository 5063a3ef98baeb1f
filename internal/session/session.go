// Package session issues and checks the tokens bridge clients present when
// they connect.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
)

const (
	CookieName    = "firebridge_token"
	DefaultMaxAge = 30 * 24 * time.Hour
)

var ErrInvalidToken = errors.New("session: invalid bridge token")

type Claims struct {
	Client string `json:"client"`
	Issued int64  `json:"issued"`
}

type Tokens struct {
	sc     *securecookie.SecureCookie
	maxAge time.Duration
}

// NewTokens signs tokens with secret, which should be 32 or 64 random
// bytes.
func NewTokens(secret []byte, maxAge time.Duration) *Tokens {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	sc := securecookie.New(secret, nil)
	sc.MaxAge(int(maxAge.Seconds()))
	sc.SetSerializer(securecookie.JSONEncoder{})
	return &Tokens{sc: sc, maxAge: maxAge}
}

func (t *Tokens) Issue(client string) (string, error) {
	token, err := t.sc.Encode(CookieName, Claims{Client: client, Issued: time.Now().Unix()})
	if err != nil {
		return "", fmt.Errorf("issue token for %s: %w", client, err)
	}
	return token, nil
}

func (t *Tokens) Verify(token string) (Claims, error) {
	if token == "" {
		return Claims{}, ErrInvalidToken
	}
	var c Claims
	if err := t.sc.Decode(CookieName, token, &c); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return c, nil
}

// FromRequest finds a token in the Authorization header, the token query
// parameter or the cookie, in that order. fromQuery reports the second
// case.
func FromRequest(r *http.Request) (token string, fromQuery bool) {
	if v, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return v, false
	}
	if v := r.URL.Query().Get("token"); v != "" {
		return v, true
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value, false
	}
	return "", false
}

func (t *Tokens) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(t.maxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
