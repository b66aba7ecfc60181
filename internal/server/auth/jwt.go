// Package auth issues and verifies the HS256 stream tokens that gate the
// shareable playback URLs.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"uplink/internal/common"
)

// StreamClaims binds a stream token to one file.
type StreamClaims struct {
	jwt.RegisteredClaims
	FileID string `json:"fileId"`
}

// GenerateStreamToken signs a token granting playback of the given file for
// validityDuration.
func GenerateStreamToken(fileID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, StreamClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		FileID: fileID,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GetFileIDFromToken verifies the token and returns the file it grants.
func GetFileIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &StreamClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", common.ErrInvalidToken
	}

	if !token.Valid {
		return "", common.ErrInvalidToken
	}

	return claims.FileID, nil
}
