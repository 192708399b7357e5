package protocol

import (
	"encoding/binary"
)

// Encoder builds frontend wire messages into a reusable byte buffer,
// grounded on the teacher's encodeMessage (tag + big-endian length +
// payload, length includes itself).
type Encoder struct {
	buf []byte
}

func NewEncoder() *Encoder {
	return &Encoder{buf: make([]byte, 0, 256)}
}

// Bytes returns the buffer accumulated so far.
func (e *Encoder) Bytes() []byte { return e.buf }

// Reset empties the buffer for reuse.
func (e *Encoder) Reset() { e.buf = e.buf[:0] }

func (e *Encoder) message(tag byte, untagged bool) (start int) {
	if !untagged {
		e.buf = append(e.buf, tag)
	}
	start = len(e.buf)
	e.buf = append(e.buf, 0, 0, 0, 0) // length placeholder
	return start
}

func (e *Encoder) finish(start int) {
	length := uint32(len(e.buf) - start)
	binary.BigEndian.PutUint32(e.buf[start:start+4], length)
}

func (e *Encoder) cstring(s string) {
	e.buf = append(e.buf, s...)
	e.buf = append(e.buf, 0)
}

func (e *Encoder) int16(v int16) {
	e.buf = append(e.buf, byte(v>>8), byte(v))
}

func (e *Encoder) int32(v int32) {
	e.buf = append(e.buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func (e *Encoder) raw(b []byte) { e.buf = append(e.buf, b...) }

// StartupMessage writes the untagged StartupMessage: protocol version 3.0
// followed by NUL-terminated key/value option pairs and a final NUL.
func (e *Encoder) StartupMessage(options map[string]string) []byte {
	e.Reset()
	start := e.message(0, true)
	e.int32(3 << 16) // protocol major.minor = 3.0
	for k, v := range options {
		e.cstring(k)
		e.cstring(v)
	}
	e.buf = append(e.buf, 0)
	e.finish(start)
	return e.buf
}

// SSLRequest writes the untagged SSLRequest message.
func (e *Encoder) SSLRequest() []byte {
	e.Reset()
	start := e.message(0, true)
	e.int32(80877103)
	e.finish(start)
	return e.buf
}

// PasswordMessage writes a cleartext or MD5-hashed password reply.
func (e *Encoder) PasswordMessage(password string) []byte {
	e.Reset()
	start := e.message(TagPasswordMessage, false)
	e.cstring(password)
	e.finish(start)
	return e.buf
}

// SASLInitialResponse writes the client's chosen SASL mechanism and its
// first message.
func (e *Encoder) SASLInitialResponse(mechanism string, data []byte) []byte {
	e.Reset()
	start := e.message(TagPasswordMessage, false)
	e.cstring(mechanism)
	if data == nil {
		e.int32(-1)
	} else {
		e.int32(int32(len(data)))
		e.raw(data)
	}
	e.finish(start)
	return e.buf
}

// SASLResponse writes a subsequent SASL exchange message.
func (e *Encoder) SASLResponse(data []byte) []byte {
	e.Reset()
	start := e.message(TagPasswordMessage, false)
	e.raw(data)
	e.finish(start)
	return e.buf
}

// Query writes a simple-query message carrying the raw SQL string.
func (e *Encoder) Query(sql string) []byte {
	e.Reset()
	start := e.message(TagQuery, false)
	e.cstring(sql)
	e.finish(start)
	return e.buf
}

// Parse writes a Parse message: statement name, query text and an explicit
// (possibly empty) list of parameter type OIDs.
func (e *Encoder) Parse(stmtName, query string, paramOIDs []int32) []byte {
	e.Reset()
	start := e.message(TagParse, false)
	e.cstring(stmtName)
	e.cstring(query)
	e.int16(int16(len(paramOIDs)))
	for _, oid := range paramOIDs {
		e.int32(oid)
	}
	e.finish(start)
	return e.buf
}

// BindParam is a single parameter value to bind, with its wire format.
type BindParam struct {
	Format DataFormat
	Value  []byte // nil means SQL NULL
}

// Bind writes a Bind message creating portalName from stmtName with the
// given parameter values and requested result column formats.
func (e *Encoder) Bind(portalName, stmtName string, params []BindParam, resultFormats []DataFormat) []byte {
	e.Reset()
	start := e.message(TagBind, false)
	e.cstring(portalName)
	e.cstring(stmtName)
	e.int16(int16(len(params)))
	for _, p := range params {
		e.int16(int16(p.Format))
	}
	e.int16(int16(len(params)))
	for _, p := range params {
		if p.Value == nil {
			e.int32(-1)
		} else {
			e.int32(int32(len(p.Value)))
			e.raw(p.Value)
		}
	}
	e.int16(int16(len(resultFormats)))
	for _, f := range resultFormats {
		e.int16(int16(f))
	}
	e.finish(start)
	return e.buf
}

// DescribeKind selects between describing a prepared statement or a portal.
type DescribeKind byte

const (
	DescribeStatement DescribeKind = 'S'
	DescribePortal    DescribeKind = 'P'
)

// Describe writes a Describe message for the named statement or portal.
func (e *Encoder) Describe(kind DescribeKind, name string) []byte {
	e.Reset()
	start := e.message(TagDescribe, false)
	e.buf = append(e.buf, byte(kind))
	e.cstring(name)
	e.finish(start)
	return e.buf
}

// Execute writes an Execute message; maxRows of 0 means "fetch all rows".
func (e *Encoder) Execute(portalName string, maxRows int32) []byte {
	e.Reset()
	start := e.message(TagExecute, false)
	e.cstring(portalName)
	e.int32(maxRows)
	e.finish(start)
	return e.buf
}

// Sync writes a Sync message, ending the current extended-query cycle.
func (e *Encoder) Sync() []byte {
	e.Reset()
	start := e.message(TagSync, false)
	e.finish(start)
	return e.buf
}

// CloseKind selects between closing a prepared statement or a portal.
type CloseKind byte

const (
	CloseStatement CloseKind = 'S'
	ClosePortal    CloseKind = 'P'
)

// Close writes a Close message for the named statement or portal.
func (e *Encoder) Close(kind CloseKind, name string) []byte {
	e.Reset()
	start := e.message(TagClose, false)
	e.buf = append(e.buf, byte(kind))
	e.cstring(name)
	e.finish(start)
	return e.buf
}

// Terminate writes a Terminate message, the polite way to end a session.
func (e *Encoder) Terminate() []byte {
	e.Reset()
	start := e.message(TagTerminate, false)
	e.finish(start)
	return e.buf
}
