package room

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type memberClaims struct {
	MemberId string `json:"member_id"`
	RoomId   string `json:"room_id"`
	Address  string `json:"address,omitempty"`
	jwt.RegisteredClaims
}

func (s *service) generateAuthToken(m *member, roomId string, now time.Time) (string, error) {
	claims := memberClaims{
		MemberId: m.id,
		RoomId:   roomId,
		Address:  m.address,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AuthTokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString([]byte(s.cfg.Secret))
}

func (s *service) parseAuthToken(tokenString string) (*memberClaims, error) {
	var claims memberClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return []byte(s.cfg.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAuthToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidAuthToken
	}

	return &claims, nil
}
