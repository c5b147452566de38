package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token purposes. A token minted for one purpose is rejected by endpoints
// expecting another, so a captured confirmation link cannot be replayed
// against the password-reset endpoint.
const (
	PurposeAccess  = "access"
	PurposeRefresh = "refresh"
	PurposeConfirm = "confirm"
	PurposeReset   = "reset"
)

var ErrTokenMalformed = errors.New("token is malformed or has a bad signature")

// Claims is the signed payload carried by every token class.
type Claims struct {
	UserID  string `json:"uid"`
	Role    string `json:"role"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// Expired reports whether the claims' expiry has passed. Expiry is checked
// here rather than during decode so callers can tell "not a token" apart
// from "token expired".
func (c *Claims) Expired(now time.Time) bool {
	return c.ExpiresAt == nil || !now.Before(c.ExpiresAt.Time)
}

// Codec signs and verifies HS256 tokens with a single class secret.
// Access-class and refresh-class codecs are built from distinct secrets so
// compromising one cannot forge the other.
type Codec struct {
	secret []byte
}

func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

// Sign stamps an absolute expiry of now+ttl and returns the signed token.
func (c *Codec) Sign(userID, role, purpose string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:  userID,
		Role:    role,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Decode verifies structure and signature but not expiry; an expired token
// decodes successfully and the caller must check Claims.Expired.
func (c *Codec) Decode(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		return nil, ErrTokenMalformed
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}
