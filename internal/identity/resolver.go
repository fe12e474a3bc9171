// Package identity derives the acting user's identity on the client side.
package identity

import (
	"strings"

	"github.com/MarcoPoloResearchLab/yapp/internal/auth"
	"github.com/golang-jwt/jwt/v5"
)

// AnonymousEmail is the sentinel identity used when no user can be derived.
const AnonymousEmail = "anonymous"

// Identity is the acting user as seen by the feed engine.
type Identity struct {
	Email       string
	DisplayName string
	Credential  string
	Anonymous   bool
}

// HasCredential reports whether a bearer credential is available.
func (i Identity) HasCredential() bool {
	return strings.TrimSpace(i.Credential) != ""
}

// Name returns the display name, falling back to the local part of the email.
func (i Identity) Name() string {
	if name := strings.TrimSpace(i.DisplayName); name != "" {
		return name
	}
	if at := strings.Index(i.Email, "@"); at > 0 {
		return i.Email[:at]
	}
	return i.Email
}

// CredentialSource supplies the current bearer credential, if any.
type CredentialSource func() string

// StaticCredential returns a CredentialSource that always yields token.
func StaticCredential(token string) CredentialSource {
	return func() string {
		return token
	}
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	Credentials   CredentialSource
	EmailOverride string
	NameOverride  string
}

// Resolver derives the current identity from the active credential.
type Resolver struct {
	credentials   CredentialSource
	emailOverride string
	nameOverride  string
	parser        *jwt.Parser
}

// NewResolver constructs a Resolver. A nil credential source behaves as
// signed out.
func NewResolver(cfg ResolverConfig) *Resolver {
	credentials := cfg.Credentials
	if credentials == nil {
		credentials = StaticCredential("")
	}
	return &Resolver{
		credentials:   credentials,
		emailOverride: normalizeEmail(cfg.EmailOverride),
		nameOverride:  strings.TrimSpace(cfg.NameOverride),
		parser:        jwt.NewParser(),
	}
}

// Current returns the acting identity. It never fails: when no email can be
// derived the anonymous sentinel is returned with whatever credential exists.
func (r *Resolver) Current() Identity {
	credential := strings.TrimSpace(r.credentials())
	email, name := r.claimsFrom(credential)
	if r.emailOverride != "" {
		email = r.emailOverride
	}
	if r.nameOverride != "" {
		name = r.nameOverride
	}
	if email == "" {
		return Identity{
			Email:      AnonymousEmail,
			Credential: credential,
			Anonymous:  true,
		}
	}
	return Identity{
		Email:       email,
		DisplayName: name,
		Credential:  credential,
	}
}

// claimsFrom reads claims without verifying the signature; the server is
// the authority on token validity.
func (r *Resolver) claimsFrom(credential string) (string, string) {
	if credential == "" {
		return "", ""
	}
	claims := &tokenClaims{}
	if _, _, err := r.parser.ParseUnverified(credential, claims); err != nil {
		return "", ""
	}
	email := normalizeEmail(claims.UserEmail)
	if email == "" {
		email = normalizeEmail(claims.OIDCEmail)
	}
	if email == "" && strings.Contains(claims.Subject, "@") {
		email = normalizeEmail(claims.Subject)
	}
	name := strings.TrimSpace(claims.UserDisplayName)
	if name == "" {
		name = strings.TrimSpace(claims.OIDCName)
	}
	return email, name
}

type tokenClaims struct {
	auth.SessionClaims
	OIDCEmail string `json:"email,omitempty"`
	OIDCName  string `json:"name,omitempty"`
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
