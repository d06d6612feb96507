package usecase

import (
	"fmt"
	"time"

	"keepr-backend/pkg/apperror"

	"github.com/golang-jwt/jwt/v5"
)

const (
	stateMaxAge    = 5 * time.Minute
	stateClockSkew = time.Minute
)

// stateClaims travel through the OAuth redirect in place of a server-side session
type stateClaims struct {
	UserID         string `json:"uid"`
	IssuedAtMillis int64  `json:"iat_ms"`
	jwt.RegisteredClaims
}

// stateCodec signs and verifies state tokens. Nothing is stored between the two calls.
type stateCodec struct {
	secret []byte
}

func (s stateCodec) encode(userID string, now time.Time) (string, error) {
	claims := stateClaims{
		UserID:         userID,
		IssuedAtMillis: now.UnixMilli(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// decode returns the user the state was issued for.
// Tokens older than stateMaxAge fail with ErrExpiredAuthorization, anything unreadable with ErrInvalidCallback.
func (s stateCodec) decode(state string, now time.Time) (string, error) {
	var claims stateClaims
	_, err := jwt.ParseWithClaims(state, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperror.ErrInvalidCallback, err)
	}
	if claims.UserID == "" || claims.IssuedAtMillis == 0 {
		return "", fmt.Errorf("%w: incomplete state", apperror.ErrInvalidCallback)
	}

	age := now.Sub(time.UnixMilli(claims.IssuedAtMillis))
	if age < -stateClockSkew {
		return "", fmt.Errorf("%w: state issued in the future", apperror.ErrInvalidCallback)
	}
	if age > stateMaxAge {
		return "", apperror.ErrExpiredAuthorization
	}
	return claims.UserID, nil
}
