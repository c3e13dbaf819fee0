package bridge

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// Authenticator validates credentials presented on incoming requests.
type Authenticator interface {
	// Authenticate checks the provided bearer token. Returning an error
	// rejects the request with 401 unauthorized.
	Authenticate(ctx context.Context, token string) error
}

// AuthenticatorFunc adapts a function to the Authenticator interface.
type AuthenticatorFunc func(ctx context.Context, token string) error

func (f AuthenticatorFunc) Authenticate(ctx context.Context, token string) error {
	return f(ctx, token)
}

// StaticTokenAuthenticator accepts a fixed set of bearer tokens. Comparison is
// constant-time per candidate token.
type StaticTokenAuthenticator struct {
	tokens [][]byte
}

// NewStaticTokenAuthenticator builds an authenticator around the given tokens.
func NewStaticTokenAuthenticator(tokens ...string) *StaticTokenAuthenticator {
	auth := &StaticTokenAuthenticator{}
	for _, t := range tokens {
		if t == "" {
			continue
		}
		auth.tokens = append(auth.tokens, []byte(t))
	}
	return auth
}

func (a *StaticTokenAuthenticator) Authenticate(_ context.Context, token string) error {
	candidate := []byte(token)
	for _, known := range a.tokens {
		if len(known) == len(candidate) && subtle.ConstantTimeCompare(known, candidate) == 1 {
			return nil
		}
	}
	return NewHTTPError(http.StatusUnauthorized, ErrorTypeStateError, CodeInvalidAuthorization, "invalid bearer token")
}

// JWTAuthenticator validates HMAC-signed JWT bearer tokens.
type JWTAuthenticator struct {
	secret   []byte
	issuer   string
	audience string
}

// JWTOption customizes JWT validation.
type JWTOption func(*JWTAuthenticator)

// WithJWTIssuer requires the iss claim to match.
func WithJWTIssuer(issuer string) JWTOption {
	return func(a *JWTAuthenticator) {
		a.issuer = issuer
	}
}

// WithJWTAudience requires the aud claim to contain the given audience.
func WithJWTAudience(audience string) JWTOption {
	return func(a *JWTAuthenticator) {
		a.audience = audience
	}
}

// NewJWTAuthenticator builds an authenticator that verifies HS256 tokens
// signed with the given secret.
func NewJWTAuthenticator(secret []byte, opts ...JWTOption) *JWTAuthenticator {
	auth := &JWTAuthenticator{secret: secret}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(auth)
	}
	return auth
}

func (a *JWTAuthenticator) Authenticate(_ context.Context, token string) error {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(a.audience))
	}

	_, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, parserOpts...)
	if err != nil {
		return NewHTTPError(http.StatusUnauthorized, ErrorTypeStateError, CodeInvalidAuthorization, "invalid bearer token")
	}
	return nil
}

// authenticationMiddleware rejects requests lacking a valid bearer token.
func authenticationMiddleware(auth Authenticator) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			logger := zerolog.Ctx(r.Context())

			header := r.Header.Get("Authorization")
			scheme, token, found := strings.Cut(header, " ")
			if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
				logger.Warn().Msg("missing or malformed authorization header")
				writeJSONError(w, NewHTTPError(http.StatusUnauthorized, ErrorTypeStateError, CodeMissingAuthorization, "missing bearer token"))
				return
			}

			if err := auth.Authenticate(r.Context(), token); err != nil {
				logger.Warn().Err(err).Msg("authentication failed")
				writeServiceError(w, err)
				return
			}

			next(w, r)
		}
	}
}
