package gateway

import (
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	errs "IMCore/tools/errs"
)

// AuthOptions controls token verification. Token issuing belongs to the
// auth service; the gateway only validates and extracts the subject.
type AuthOptions struct {
	Secret []byte
	Alg    string        // HS256/HS384/HS512 (default HS256)
	TTL    time.Duration // used by Generate only (default 2h)
}

func DefaultAuthOptions(secret []byte) AuthOptions {
	return AuthOptions{Secret: secret, Alg: "HS256", TTL: 2 * time.Hour}
}

// Generate signs a token for userID. Kept for tooling and tests; the
// production issuer lives outside the gateway.
func Generate(opts AuthOptions, userID string) (string, time.Time, error) {
	method, err := signingMethod(opts.Alg)
	if err != nil {
		return "", time.Time{}, err
	}
	if opts.TTL <= 0 {
		opts.TTL = 2 * time.Hour
	}
	now := time.Now()
	exp := now.Add(opts.TTL)

	claims := jwtlib.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": exp.Unix(),
	}
	tok := jwtlib.NewWithClaims(method, claims)
	signed, err := tok.SignedString(opts.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify parses the token and returns the subject user id.
func Verify(opts AuthOptions, token string) (string, error) {
	if token == "" {
		return "", errs.ErrInvalidArgument.WrapMsg("token missing")
	}
	if _, err := signingMethod(opts.Alg); err != nil {
		return "", err
	}
	parsed, err := jwtlib.Parse(token, func(t *jwtlib.Token) (interface{}, error) {
		// only the HMAC family is accepted
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return opts.Secret, nil
	})
	if err != nil {
		return "", errs.ErrUnauthorized.WrapMsg("token parse failed", "err", err)
	}
	if !parsed.Valid {
		return "", errs.ErrUnauthorized.WrapMsg("invalid token")
	}
	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return "", errs.ErrUnauthorized.WrapMsg("claims type mismatch")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", errs.ErrUnauthorized.WrapMsg("subject missing")
	}
	return sub, nil
}

func signingMethod(alg string) (jwtlib.SigningMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(alg)) {
	case "", "HS256":
		return jwtlib.SigningMethodHS256, nil
	case "HS384":
		return jwtlib.SigningMethodHS384, nil
	case "HS512":
		return jwtlib.SigningMethodHS512, nil
	default:
		return nil, fmt.Errorf("unsupported alg: %s (use HS256/HS384/HS512)", alg)
	}
}
