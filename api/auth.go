/*
auth.go - Bearer-token identity for edit/approve/reset

PURPOSE:
  Maps an HS256 JWT onto a timesheet.Editor and stores it in the request
  context. Handlers never decide permissions themselves: they pass the
  Editor to the service, which rejects non-modifying roles with
  ErrUnauthorized before touching the store.

CLAIMS:
  editor_id, name, role (admin | manager | employee | system) plus the
  registered claims (exp, iat, jti).

DISABLED MODE:
  With auth.enabled=false every request runs as LocalEditor. Meant for the
  demo scenarios and local development only.

SEE ALSO:
  - timesheet/types.go: Editor.CanModify
  - server.go: middleware order
*/
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/warp/timesheet-engine/timesheet"
)

var (
	ErrTokenMissing = errors.New("missing bearer token")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// LocalEditor is the identity used when authentication is disabled.
var LocalEditor = timesheet.Editor{ID: "local", Name: "Local Admin", Role: timesheet.RoleAdmin}

// Claims is the JWT payload.
type Claims struct {
	EditorID string `json:"editor_id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	jwtv5.RegisteredClaims
}

// Authenticator issues and verifies editor tokens.
type Authenticator struct {
	secret []byte
	issuer string
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: "timesheet-engine"}
}

// Issue signs a token for editor valid for ttl.
func (a *Authenticator) Issue(editor timesheet.Editor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		EditorID: editor.ID,
		Name:     editor.Name,
		Role:     string(editor.Role),
		RegisteredClaims: jwtv5.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   editor.ID,
			Issuer:    a.issuer,
			IssuedAt:  jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse verifies the signature and expiry and returns the editor.
func (a *Authenticator) Parse(token string) (timesheet.Editor, error) {
	parsed, err := jwtv5.ParseWithClaims(token, &Claims{}, func(t *jwtv5.Token) (any, error) {
		if _, ok := t.Method.(*jwtv5.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return a.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return timesheet.Editor{}, ErrTokenExpired
		}
		return timesheet.Editor{}, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.EditorID == "" {
		return timesheet.Editor{}, ErrTokenInvalid
	}
	return timesheet.Editor{ID: claims.EditorID, Name: claims.Name, Role: timesheet.Role(claims.Role)}, nil
}

// Middleware rejects requests without a valid token with 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Authentication required", err)
			return
		}
		editor, err := a.Parse(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithEditor(r.Context(), editor)))
	})
}

// LocalAuth runs every request as LocalEditor.
func LocalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithEditor(r.Context(), LocalEditor)))
	})
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrTokenMissing
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrTokenInvalid
	}
	return strings.TrimSpace(token), nil
}

type editorKey struct{}

// WithEditor stores editor in ctx.
func WithEditor(ctx context.Context, editor timesheet.Editor) context.Context {
	return context.WithValue(ctx, editorKey{}, editor)
}

// EditorFrom returns the request's editor. The zero Editor cannot modify
// anything, so a missing identity fails closed in the service.
func EditorFrom(ctx context.Context) timesheet.Editor {
	editor, _ := ctx.Value(editorKey{}).(timesheet.Editor)
	return editor
}
