// ABOUTME: JWT pairing tokens for authenticating companion devices
// ABOUTME: Uses HS256 signing with the configured pairing secret

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

const defaultDeviceTokenTTL = 90 * 24 * time.Hour

// DeviceClaims is what a verified pairing token asserts about a device.
type DeviceClaims struct {
	DeviceID string
	Name     string
}

// DeviceTokens issues and verifies HS256-signed pairing tokens. A token is
// minted once during pairing (QR scan) and presented on every channel
// handshake afterwards.
type DeviceTokens struct {
	secret []byte
	ttl    time.Duration
}

// NewDeviceTokens creates a token issuer/verifier with the given secret.
// A non-positive ttl falls back to the default (90 days).
func NewDeviceTokens(secret []byte, ttl time.Duration) (*DeviceTokens, error) {
	if len(secret) == 0 {
		return nil, errors.New("pairing secret must not be empty")
	}
	if ttl <= 0 {
		ttl = defaultDeviceTokenTTL
	}
	return &DeviceTokens{secret: secret, ttl: ttl}, nil
}

// Issue creates a pairing token for the given device.
func (d *DeviceTokens) Issue(deviceID, name string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  deviceID,
		"name": name,
		"iat":  now.Unix(),
		"exp":  now.Add(d.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(d.secret)
}

// Verify validates the token and extracts the device identity.
func (d *DeviceTokens) Verify(tokenString string) (*DeviceClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return d.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	name, _ := claims["name"].(string)

	return &DeviceClaims{DeviceID: sub, Name: name}, nil
}
