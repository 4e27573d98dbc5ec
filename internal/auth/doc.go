// Package auth provides authentication for handoff-bridge.
//
// # Authentication Methods
//
// Two independent surfaces, two mechanisms:
//
//   - Device pairing tokens: Mobile devices authenticate the websocket
//     handshake with a JWT issued by `handoff-bridge pair`. Tokens are signed
//     with HS256 using the configured pairing_secret and carry the device ID
//     and display name.
//
//   - API bearer token: Agent-facing HTTP endpoints require the static
//     api_token from the config file. Comparison is constant-time.
//
// # Pairing Token Lifecycle
//
// Issue a token on the server host:
//
//	tokens, _ := auth.NewDeviceTokens(secret, ttl)
//	token, _ := tokens.Issue(deviceID, "Dana's Phone")
//
// The mobile app stores the token and presents it on every connection. The
// websocket handler verifies it during the handshake:
//
//	claims, err := tokens.Verify(token)
//
// Expired and malformed tokens map to ErrExpiredToken and ErrInvalidToken so
// the handler can report a useful close reason.
package auth
