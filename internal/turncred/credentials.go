// Package turncred generates time-limited TURN "long-term" credentials
// per RFC 5766 / the TURN REST API convention (spec.md §4.3).
package turncred

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // HMAC-SHA1 is the RFC 5766 long-term credential mechanism, not a digest for confidentiality.
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ascii-chat-rtc/rtc/internal/rtcerr"
)

// MaxFieldLen bounds the username/password fields, mirroring the 128-byte
// fixed buffers spec.md §4.3 allocates for FFI/wire interop. A longer
// session id or secret would blow that budget on the C side; Go strings
// don't need the buffer, but the invariant is preserved so credentials
// generated here stay interoperable with that interface.
const MaxFieldLen = 128

// Credentials is the ephemeral TURN authentication tuple from spec.md §3.
type Credentials struct {
	Username string
	Password string
	Expiry   time.Time
}

// Expired reports whether now is at or past creds.Expiry.
func (c Credentials) Expired(now time.Time) bool {
	return !now.Before(c.Expiry)
}

// Generate derives TURN REST API credentials from a shared secret and
// session id:
//
//	username = "<unix_expiry>:<session_id>"
//	password = base64(HMAC-SHA1(secret, username))
func Generate(secret, sessionID string, validity time.Duration, now time.Time) (Credentials, error) {
	if secret == "" {
		return Credentials{}, rtcerr.Newf(rtcerr.InvalidParam, "turncred.Generate", "secret must not be empty")
	}
	if sessionID == "" {
		return Credentials{}, rtcerr.Newf(rtcerr.InvalidParam, "turncred.Generate", "sessionID must not be empty")
	}
	if validity <= 0 {
		return Credentials{}, rtcerr.Newf(rtcerr.InvalidParam, "turncred.Generate", "validity must be positive")
	}

	expiry := now.Add(validity)
	username := fmt.Sprintf("%d:%s", expiry.Unix(), sessionID)
	if len(username) >= MaxFieldLen {
		return Credentials{}, rtcerr.Newf(rtcerr.BufferOverflow, "turncred.Generate", "username %d bytes exceeds %d-byte buffer", len(username), MaxFieldLen)
	}

	password, err := computePassword(secret, username)
	if err != nil {
		return Credentials{}, err
	}
	if len(password) >= MaxFieldLen {
		return Credentials{}, rtcerr.Newf(rtcerr.BufferOverflow, "turncred.Generate", "password %d bytes exceeds %d-byte buffer", len(password), MaxFieldLen)
	}

	return Credentials{Username: username, Password: password, Expiry: expiry}, nil
}

// Validate recomputes the password from secret and checks that username
// has not expired, returning an error describing which check failed.
func Validate(secret, username, password string, now time.Time) error {
	parts := strings.SplitN(username, ":", 2)
	if len(parts) != 2 {
		return rtcerr.Newf(rtcerr.InvalidParam, "turncred.Validate", "malformed username %q, expected \"<expiry>:<session_id>\"", username)
	}

	expiryUnix, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return rtcerr.New(rtcerr.InvalidParam, "turncred.Validate", err)
	}

	if !now.Before(time.Unix(expiryUnix, 0)) {
		return rtcerr.Newf(rtcerr.InvalidState, "turncred.Validate", "credentials expired at %d", expiryUnix)
	}

	expected, err := computePassword(secret, username)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(password), []byte(expected)) {
		return rtcerr.Newf(rtcerr.Crypto, "turncred.Validate", "password mismatch")
	}

	return nil
}

// computePassword computes base64(HMAC-SHA1(secret, username)) per RFC 2104.
func computePassword(secret, username string) (string, error) {
	mac := hmac.New(sha1.New, []byte(secret))
	if _, err := mac.Write([]byte(username)); err != nil {
		return "", rtcerr.New(rtcerr.Crypto, "turncred.computePassword", err)
	}
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}
