package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidToken covers malformed tokens and bad signatures.
	ErrInvalidToken = errors.New("invalid download token")
	// ErrTokenExpired is returned for well-formed tokens past their expiry.
	ErrTokenExpired = errors.New("download token expired")
)

// Ticket is the content of a signed download token.
type Ticket struct {
	ExportID  string
	Path      string
	ExpiresAt time.Time
}

// SignedURLSigner issues and verifies HMAC-SHA256 download tokens.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer; a non-positive ttl defaults to 24h.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL reports how long issued tokens stay valid.
func (s *SignedURLSigner) TTL() time.Duration {
	return s.ttl
}

// Generate signs a token for the export stored at path.
func (s *SignedURLSigner) Generate(exportID, path string) (string, Ticket, error) {
	if exportID == "" || path == "" {
		return "", Ticket{}, fmt.Errorf("export id and path required")
	}
	if strings.Contains(exportID, ".") {
		return "", Ticket{}, fmt.Errorf("export id %q must not contain '.'", exportID)
	}
	if len(s.secret) == 0 {
		return "", Ticket{}, fmt.Errorf("signing secret missing")
	}
	ticket := Ticket{ExportID: exportID, Path: path, ExpiresAt: s.now().Add(s.ttl).Truncate(time.Second)}
	expires := strconv.FormatInt(ticket.ExpiresAt.Unix(), 10)
	encodedPath := base64.RawURLEncoding.EncodeToString([]byte(path))
	signature := s.sign(exportID, expires, encodedPath)
	return strings.Join([]string{exportID, expires, encodedPath, signature}, "."), ticket, nil
}

// Parse verifies the token. With allowExpired the expiry check is skipped.
func (s *SignedURLSigner) Parse(token string, allowExpired bool) (Ticket, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return Ticket{}, ErrInvalidToken
	}
	exportID, expires, encodedPath, signature := parts[0], parts[1], parts[2], parts[3]

	if !hmac.Equal([]byte(s.sign(exportID, expires, encodedPath)), []byte(signature)) {
		return Ticket{}, ErrInvalidToken
	}
	unix, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return Ticket{}, ErrInvalidToken
	}
	rawPath, err := base64.RawURLEncoding.DecodeString(encodedPath)
	if err != nil {
		return Ticket{}, ErrInvalidToken
	}

	ticket := Ticket{ExportID: exportID, Path: string(rawPath), ExpiresAt: time.Unix(unix, 0)}
	if !allowExpired && s.now().After(ticket.ExpiresAt) {
		return ticket, ErrTokenExpired
	}
	return ticket, nil
}

func (s *SignedURLSigner) sign(exportID, expires, encodedPath string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(exportID + "|" + expires + "|" + encodedPath))
	return hex.EncodeToString(mac.Sum(nil))
}
