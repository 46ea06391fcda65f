package session

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/sstent/garmindash/internal/errors"
)

const redacted = "[REDACTED]"

// Credentials are the user's Garmin Connect login. They live only in memory
// and never print either field.
type Credentials struct {
	username string
	password string
}

// NewCredentials validates that both fields are present.
func NewCredentials(username, password string) (Credentials, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Credentials{}, errors.New(errors.ErrInput,
			"Username and password are required",
			"Enter your Garmin Connect email and password")
	}
	return Credentials{username: username, password: password}, nil
}

func (c Credentials) Username() string { return c.username }

// IsZero reports whether the credentials were never set or have been wiped.
func (c Credentials) IsZero() bool { return c.username == "" && c.password == "" }

func (c Credentials) String() string {
	if c.IsZero() {
		return "Credentials{}"
	}
	return "Credentials{username: " + redacted + ", password: " + redacted + "}"
}

func (c Credentials) GoString() string { return c.String() }

// MarshalZerologObject only records whether credentials are held.
func (c Credentials) MarshalZerologObject(e *zerolog.Event) {
	e.Bool("set", !c.IsZero())
}

func (c *Credentials) wipe() {
	c.username = ""
	c.password = ""
}
