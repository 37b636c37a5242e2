package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/teamgrid/realtime/internal/domain"
)

// Verifier checks the credential token presented in the authenticate frame.
type Verifier interface {
	Verify(token, userID string) error
}

// HS256Verifier validates HS256-signed tokens whose subject must match the
// declared user id.
type HS256Verifier struct {
	secret []byte
}

func NewHS256Verifier(secret string) *HS256Verifier {
	return &HS256Verifier{secret: []byte(secret)}
}

func (v *HS256Verifier) Verify(tokenString, userID string) error {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return domain.ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return domain.ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	if sub != userID {
		return domain.ErrInvalidToken
	}
	return nil
}
