package pgconn

import (
	"encoding/hex"
	"strings"

	"github.com/mevdschee/pgwire/pgerr"
)

// requireConnected enforces spec.md §4.F's precondition that the
// quoting utilities depend on a negotiated client encoding and are
// therefore only meaningful once connected.
func (c *Connection) requireConnected(op string) error {
	if c.status != Connected {
		return pgerr.New(pgerr.InvalidArgument, "pgconn: %s requires a connected connection (status=%s)", op, c.status)
	}
	return nil
}

// ToQuotedLiteral renders s as a single-quoted SQL literal, doubling
// embedded quotes. It does not need to reach the server: escaping a
// plain `'` as `''` is encoding-agnostic, but the connected
// precondition still applies per spec.md §4.F.
func (c *Connection) ToQuotedLiteral(s string) (string, error) {
	if err := c.requireConnected("to_quoted_literal"); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			b.WriteByte('\'')
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('\'')
	return b.String(), nil
}

// ToQuotedIdentifier renders s as a double-quoted SQL identifier,
// doubling embedded quotes.
func (c *Connection) ToQuotedIdentifier(s string) (string, error) {
	if err := c.requireConnected("to_quoted_identifier"); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' {
			b.WriteByte('"')
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('"')
	return b.String(), nil
}

// ToHexData renders d as a PostgreSQL bytea hex literal: "\x" followed
// by lowercase hex, suitable for direct embedding in a simple query.
func (c *Connection) ToHexData(d []byte) (string, error) {
	s, err := c.ToHexString(d)
	if err != nil {
		return "", err
	}
	return "'\\x" + s + "'", nil
}

// ToHexString renders d as bare lowercase hex, with no bytea wrapping
// or quoting.
func (c *Connection) ToHexString(d []byte) (string, error) {
	if err := c.requireConnected("to_hex_string"); err != nil {
		return "", err
	}
	return hex.EncodeToString(d), nil
}
