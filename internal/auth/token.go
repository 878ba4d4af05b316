package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/npezzotti/go-dm/internal/apperr"
)

var (
	ErrExpiredCredential   = apperr.New(apperr.KindAuth, "token expired")
	ErrMalformedCredential = apperr.New(apperr.KindAuth, "invalid token")
	ErrInvalidPayload      = apperr.New(apperr.KindAuth, "invalid token payload")
	ErrUnknownSubject      = apperr.New(apperr.KindAuth, "user not found")
)

// TokenCodec signs and verifies short-lived bearer tokens. It never touches
// storage.
type TokenCodec struct {
	secret []byte
	method jwt.SigningMethod
	now    func() time.Time
}

func NewTokenCodec(secret []byte, algorithm string) (*TokenCodec, error) {
	method := jwt.GetSigningMethod(algorithm)
	if method == nil {
		return nil, fmt.Errorf("unknown signing method %q", algorithm)
	}
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("signing method %q is not symmetric", algorithm)
	}

	return &TokenCodec{
		secret: secret,
		method: method,
		now:    time.Now,
	}, nil
}

// Sign returns a token for username that expires after ttl.
func (c *TokenCodec) Sign(username string, ttl time.Duration) (string, error) {
	now := c.now()
	token := jwt.NewWithClaims(c.method, jwt.StandardClaims{
		Subject:   username,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	})

	return token.SignedString(c.secret)
}

// Verify returns the username carried by tokenString.
func (c *TokenCodec) Verify(tokenString string) (string, error) {
	var claims jwt.StandardClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != c.method.Alg() {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return c.secret, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 &&
			ve.Errors&jwt.ValidationErrorSignatureInvalid == 0 {
			return "", ErrExpiredCredential
		}
		return "", ErrMalformedCredential.Wrap(err)
	}

	if claims.Subject == "" || claims.ExpiresAt == 0 {
		return "", ErrInvalidPayload
	}

	return claims.Subject, nil
}
