// Package auth adapts bearer tokens from the identity collaborator into a
// resolved Principal. The core never mints tokens; it only verifies them.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/backend-canteen/internal/common"
)

// Claim names carried by identity tokens.
const (
	claimRole   = "role"
	claimTenant = "tenant"
	claimPhone  = "phone"
)

// Verifier validates identity tokens and extracts the principal.
type Verifier struct {
	Secret    []byte
	Issuer    string
	ClockSkew time.Duration
	Now       func() time.Time
}

func (v Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// Verify parses and validates the token, returning the resolved principal.
func (v Verifier) Verify(token string) (common.Principal, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return common.Principal{}, unauthorized("missing token", nil)
	}
	algorithm, err := extractAlgorithm(trimmed)
	if err != nil {
		return common.Principal{}, unauthorized("invalid token", err)
	}
	if algorithm != jwa.HS256 {
		return common.Principal{}, unauthorized("invalid token",
			fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, v.Secret))
	if err != nil {
		return common.Principal{}, unauthorized("invalid token", err)
	}

	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(v.now)),
	}
	if v.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(v.ClockSkew))
	}
	if v.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.Issuer))
	}
	if err := jwt.Validate(parsed, options...); err != nil {
		return common.Principal{}, unauthorized("invalid token", err)
	}

	p := common.Principal{UserID: parsed.Subject()}
	if raw, ok := parsed.Get(claimRole); ok {
		if role, ok := raw.(string); ok {
			p.Role = common.Role(role)
		}
	}
	if raw, ok := parsed.Get(claimTenant); ok {
		if tenant, ok := raw.(string); ok {
			p.TenantID = tenant
		}
	}
	if raw, ok := parsed.Get(claimPhone); ok {
		if phone, ok := raw.(string); ok {
			p.Phone = phone
		}
	}
	if p.UserID == "" {
		return common.Principal{}, unauthorized("invalid token", errors.New("token has no subject"))
	}
	return p, nil
}

func extractAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	headers := signatures[0].ProtectedHeaders()
	if headers == nil {
		return "", errors.New("auth: token missing protected headers")
	}
	return headers.Algorithm(), nil
}

func unauthorized(message string, err error) *common.AppError {
	return common.NewAppError("UNAUTHORIZED", message, http.StatusUnauthorized, err)
}
