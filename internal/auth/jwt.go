package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionWindow is how long a minted session token stays valid.
const SessionWindow = 5 * time.Minute

var (
	ErrInvalidSignature = errors.New("invalid session signature")
	ErrMalformed        = errors.New("malformed session token")
	ErrExpired          = errors.New("session token expired")
	ErrMissingKey       = errors.New("session signing key required")
)

// ClassSession is the decoded content of a session token.
type ClassSession struct {
	ClassID   string    `json:"class_id"`
	TeacherID string    `json:"teacher_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Claims represents the session token payload. Issue and expiry times are
// carried as RFC 3339 timestamps with nanosecond precision; the registered
// iat/exp NumericDates only hold whole seconds.
type Claims struct {
	ClassID   string    `json:"class_id"`
	TeacherID string    `json:"teacher_id"`
	Issued    time.Time `json:"issued_at"`
	Expires   time.Time `json:"expires_at"`
	jwt.RegisteredClaims
}

// Codec mints and verifies HS256 session tokens with a process-wide key.
type Codec struct {
	key    []byte
	issuer string
	window time.Duration
}

// NewCodec builds a codec. A non-positive window falls back to SessionWindow.
func NewCodec(key, issuer string, window time.Duration) (*Codec, error) {
	if key == "" {
		return nil, ErrMissingKey
	}
	if window <= 0 {
		window = SessionWindow
	}
	return &Codec{key: []byte(key), issuer: issuer, window: window}, nil
}

// Mint signs a session for the class/teacher pair issued at now.
func (c *Codec) Mint(classID, teacherID string, now time.Time) (string, error) {
	claims := Claims{
		ClassID:   classID,
		TeacherID: teacherID,
		Issued:    now.UTC(),
		Expires:   now.Add(c.window).UTC(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:  c.issuer,
			Subject: classID,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
}

// Verify checks the token signature and expiry against now and returns the session.
// A token is still valid at exactly its expiry instant.
func (c *Codec) Verify(tokenStr string, now time.Time) (ClassSession, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return c.key, nil
	}, opts...)
	if err != nil {
		return ClassSession{}, classify(err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return ClassSession{}, ErrInvalidSignature
	}
	if claims.ClassID == "" || claims.TeacherID == "" || claims.Issued.IsZero() || claims.Expires.IsZero() {
		return ClassSession{}, ErrMalformed
	}
	if now.After(claims.Expires) {
		return ClassSession{}, ErrExpired
	}
	return ClassSession{
		ClassID:   claims.ClassID,
		TeacherID: claims.TeacherID,
		IssuedAt:  claims.Issued,
		ExpiresAt: claims.Expires,
	}, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	default:
		return ErrInvalidSignature
	}
}
