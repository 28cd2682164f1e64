// Package authn implements the §6 authorization collaborator: verifying the
// bearer token a request carries and checking its role against an
// endpoint's minimum requirement. Grounded on the teacher's
// server/jwt.go (parseJWTToken's HMAC-SHA256 enforcement) and
// server/api_authenticate.go (SessionTokenClaims' expiry check via
// jwt.Claims.Valid), generalized from a session token to this domain's
// player/role claims.
package authn

import (
	"context"
	"crypto"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/speedrun-hub/obstacle-engine/internal/apierr"
	"github.com/speedrun-hub/obstacle-engine/internal/model"
)

// Claims is the payload carried by a bearer token.
type Claims struct {
	PlayerID  int32      `json:"pid,omitempty"`
	Login     string     `json:"login,omitempty"`
	Role      model.Role `json:"role,omitempty"`
	ExpiresAt int64      `json:"exp,omitempty"`
}

// Valid implements jwt.Claims; jwt.ParseWithClaims calls it after a
// successful signature check.
func (c *Claims) Valid() error {
	if c.ExpiresAt <= time.Now().UTC().Unix() {
		vErr := new(jwt.ValidationError)
		vErr.Inner = errors.New("token is expired")
		vErr.Errors |= jwt.ValidationErrorExpired
		return vErr
	}
	return nil
}

// Verifier checks bearer tokens signed with a shared HMAC key.
type Verifier struct {
	signingKey string
}

func NewVerifier(signingKey string) *Verifier {
	return &Verifier{signingKey: signingKey}
}

// Verify parses and validates tokenString, rejecting anything not signed
// with HMAC-SHA256 by this verifier's key, and returns the claims it
// carries.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if s, ok := token.Method.(*jwt.SigningMethodHMAC); !ok || s.Hash != crypto.SHA256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(v.signingKey), nil
	})
	if err != nil || !token.Valid {
		return nil, apierr.Unauthorized()
	}
	return claims, nil
}

// Sign issues a token carrying claims, signed with this verifier's key.
func (v *Verifier) Sign(claims *Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(v.signingKey))
}

// RequireRole fails with Unauthorized unless claims' role meets or exceeds
// min in the player < mod < admin hierarchy.
func RequireRole(claims *Claims, min model.Role) error {
	if roleRank(claims.Role) < roleRank(min) {
		return apierr.Unauthorized()
	}
	return nil
}

func roleRank(r model.Role) int {
	switch r {
	case model.RoleAdmin:
		return 2
	case model.RoleMod:
		return 1
	default:
		return 0
	}
}

// TokenExchanger trades an external OAuth authorization code for this
// engine's own claims. The only concrete implementation provided is
// HTTPExchanger, hitting a configured token endpoint; the interface lets
// callers substitute a test double without pulling in a real OAuth
// provider.
type TokenExchanger interface {
	Exchange(ctx context.Context, code string) (*Claims, error)
}

// HTTPExchanger is the documented external call behind TokenExchanger: a
// plain POST to a configured token endpoint, parsed into Claims.
type HTTPExchanger struct {
	client   *http.Client
	tokenURL string
}

func NewHTTPExchanger(client *http.Client, tokenURL string) *HTTPExchanger {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPExchanger{client: client, tokenURL: tokenURL}
}

func (e *HTTPExchanger) Exchange(ctx context.Context, code string) (*Claims, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.tokenURL, nil)
	if err != nil {
		return nil, apierr.Internal(err, "build oauth token exchange request")
	}
	q := req.URL.Query()
	q.Set("code", code)
	req.URL.RawQuery = q.Encode()

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, apierr.Internal(err, "oauth token exchange request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apierr.Unauthorized()
	}

	var claims Claims
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, apierr.Internal(err, "decode oauth token exchange response")
	}
	return &claims, nil
}
