package protocol

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Decoder is a streaming, non-blocking backend message parser. Callers
// append freshly read bytes with Feed and pull complete messages with
// Next; Next returns (nil, false, nil) when the buffer holds an
// incomplete message, so the caller's poll loop can go back to waiting
// on the socket instead of blocking here, unlike the teacher's
// io.ReadFull-based readMessage.
type Decoder struct {
	buf []byte
}

func NewDecoder() *Decoder {
	return &Decoder{buf: make([]byte, 0, 4096)}
}

// Feed appends newly read bytes to the internal buffer.
func (d *Decoder) Feed(b []byte) {
	d.buf = append(d.buf, b...)
}

// Buffered reports how many bytes are waiting to be parsed.
func (d *Decoder) Buffered() int { return len(d.buf) }

// Next parses and removes one complete message from the buffer. ok is
// false when fewer bytes than a full message are currently buffered.
func (d *Decoder) Next() (msg BackendMessage, ok bool, err error) {
	if len(d.buf) < 5 {
		return nil, false, nil
	}
	tag := d.buf[0]
	length := binary.BigEndian.Uint32(d.buf[1:5])
	if length < 4 {
		return nil, false, errors.Errorf("protocol: invalid message length %d for tag %q", length, tag)
	}
	total := 1 + int(length)
	if len(d.buf) < total {
		return nil, false, nil
	}
	payload := d.buf[5:total]
	msg, err = decodeMessage(tag, payload)
	if err != nil {
		return nil, false, errors.Wrapf(err, "protocol: decoding message %q", tag)
	}
	// Shift the consumed message out of the buffer.
	d.buf = append(d.buf[:0], d.buf[total:]...)
	return msg, true, nil
}

type reader struct {
	b   []byte
	pos int
}

func (r *reader) byte() (byte, bool) {
	if r.pos >= len(r.b) {
		return 0, false
	}
	v := r.b[r.pos]
	r.pos++
	return v, true
}

func (r *reader) cstring() (string, error) {
	start := r.pos
	for r.pos < len(r.b) {
		if r.b[r.pos] == 0 {
			s := string(r.b[start:r.pos])
			r.pos++
			return s, nil
		}
		r.pos++
	}
	return "", errors.New("protocol: unterminated string")
}

func (r *reader) int16() (int16, error) {
	if r.pos+2 > len(r.b) {
		return 0, errors.New("protocol: truncated int16")
	}
	v := int16(binary.BigEndian.Uint16(r.b[r.pos : r.pos+2]))
	r.pos += 2
	return v, nil
}

func (r *reader) int32() (int32, error) {
	if r.pos+4 > len(r.b) {
		return 0, errors.New("protocol: truncated int32")
	}
	v := int32(binary.BigEndian.Uint32(r.b[r.pos : r.pos+4]))
	r.pos += 4
	return v, nil
}

func (r *reader) bytesN(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.b) {
		return nil, errors.New("protocol: truncated byte run")
	}
	v := r.b[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

func (r *reader) remaining() []byte { return r.b[r.pos:] }

func decodeMessage(tag byte, payload []byte) (BackendMessage, error) {
	r := &reader{b: payload}
	switch tag {
	case TagAuthentication:
		return decodeAuthentication(r)
	case TagParameterStatus:
		name, err := r.cstring()
		if err != nil {
			return nil, err
		}
		value, err := r.cstring()
		if err != nil {
			return nil, err
		}
		return ParameterStatus{Name: name, Value: value}, nil
	case TagBackendKeyData:
		pid, err := r.int32()
		if err != nil {
			return nil, err
		}
		key, err := r.int32()
		if err != nil {
			return nil, err
		}
		return BackendKeyData{ProcessID: pid, SecretKey: key}, nil
	case TagReadyForQuery:
		b, ok := r.byte()
		if !ok {
			return nil, errors.New("protocol: truncated ReadyForQuery")
		}
		return ReadyForQuery{Status: TransactionStatus(b)}, nil
	case TagRowDescription:
		return decodeRowDescription(r)
	case TagDataRow:
		return decodeDataRow(r)
	case TagCommandComplete:
		s, err := r.cstring()
		if err != nil {
			return nil, err
		}
		return CommandComplete{Tag: s}, nil
	case TagEmptyQueryResponse:
		return EmptyQueryResponse{}, nil
	case TagNoticeResponse:
		f, err := decodeFields(r)
		if err != nil {
			return nil, err
		}
		return NoticeResponse{Fields: f}, nil
	case TagNotificationResponse:
		pid, err := r.int32()
		if err != nil {
			return nil, err
		}
		channel, err := r.cstring()
		if err != nil {
			return nil, err
		}
		p, err := r.cstring()
		if err != nil {
			return nil, err
		}
		return NotificationResponse{ProcessID: pid, Channel: channel, Payload: p}, nil
	case TagParseComplete:
		return ParseComplete{}, nil
	case TagBindComplete:
		return BindComplete{}, nil
	case TagCloseComplete:
		return CloseComplete{}, nil
	case TagParameterDescription:
		return decodeParameterDescription(r)
	case TagNoData:
		return NoData{}, nil
	case TagErrorResponse:
		f, err := decodeFields(r)
		if err != nil {
			return nil, err
		}
		return ErrorResponse{Fields: f}, nil
	case TagCopyInResponse:
		cr, err := decodeCopyResponse(r)
		if err != nil {
			return nil, err
		}
		return CopyInResponse(cr), nil
	case TagCopyOutResponse:
		cr, err := decodeCopyResponse(r)
		if err != nil {
			return nil, err
		}
		return CopyOutResponse(cr), nil
	case TagCopyBothResponse:
		cr, err := decodeCopyResponse(r)
		if err != nil {
			return nil, err
		}
		return CopyBothResponse(cr), nil
	case TagPortalSuspended:
		return PortalSuspended{}, nil
	default:
		return nil, errors.Errorf("protocol: unknown backend message tag %q", tag)
	}
}

func decodeAuthentication(r *reader) (BackendMessage, error) {
	code, err := r.int32()
	if err != nil {
		return nil, err
	}
	switch code {
	case AuthOK:
		return AuthenticationOk{}, nil
	case AuthCleartextPassword:
		return AuthenticationCleartextPassword{}, nil
	case AuthMD5Password:
		salt, err := r.bytesN(4)
		if err != nil {
			return nil, err
		}
		var s [4]byte
		copy(s[:], salt)
		return AuthenticationMD5Password{Salt: s}, nil
	case AuthSASL:
		var mechs []string
		for {
			s, err := r.cstring()
			if err != nil {
				return nil, err
			}
			if s == "" {
				break
			}
			mechs = append(mechs, s)
		}
		return AuthenticationSASL{Mechanisms: mechs}, nil
	case AuthSASLContinue:
		return AuthenticationSASLContinue{Data: append([]byte(nil), r.remaining()...)}, nil
	case AuthSASLFinal:
		return AuthenticationSASLFinal{Data: append([]byte(nil), r.remaining()...)}, nil
	default:
		return nil, errors.Errorf("protocol: unsupported authentication method %d", code)
	}
}

func decodeRowDescription(r *reader) (BackendMessage, error) {
	n, err := r.int16()
	if err != nil {
		return nil, err
	}
	fields := make([]FieldDescription, 0, n)
	for i := int16(0); i < n; i++ {
		name, err := r.cstring()
		if err != nil {
			return nil, err
		}
		tableOID, err := r.int32()
		if err != nil {
			return nil, err
		}
		attNum, err := r.int16()
		if err != nil {
			return nil, err
		}
		typeOID, err := r.int32()
		if err != nil {
			return nil, err
		}
		typeSize, err := r.int16()
		if err != nil {
			return nil, err
		}
		typeMod, err := r.int32()
		if err != nil {
			return nil, err
		}
		format, err := r.int16()
		if err != nil {
			return nil, err
		}
		fields = append(fields, FieldDescription{
			Name: name, TableOID: tableOID, ColumnAttNum: attNum,
			TypeOID: typeOID, TypeSize: typeSize, TypeMod: typeMod,
			Format: DataFormat(format),
		})
	}
	return RowDescription{Fields: fields}, nil
}

func decodeDataRow(r *reader) (BackendMessage, error) {
	n, err := r.int16()
	if err != nil {
		return nil, err
	}
	cols := make([]Field, 0, n)
	for i := int16(0); i < n; i++ {
		l, err := r.int32()
		if err != nil {
			return nil, err
		}
		if l == -1 {
			cols = append(cols, Field{Null: true})
			continue
		}
		b, err := r.bytesN(int(l))
		if err != nil {
			return nil, err
		}
		cols = append(cols, Field{Bytes: append([]byte(nil), b...)})
	}
	return DataRow{Columns: cols}, nil
}

func decodeParameterDescription(r *reader) (BackendMessage, error) {
	n, err := r.int16()
	if err != nil {
		return nil, err
	}
	oids := make([]int32, 0, n)
	for i := int16(0); i < n; i++ {
		oid, err := r.int32()
		if err != nil {
			return nil, err
		}
		oids = append(oids, oid)
	}
	return ParameterDescription{OIDs: oids}, nil
}

func decodeFields(r *reader) (map[byte]string, error) {
	fields := make(map[byte]string)
	for {
		tag, ok := r.byte()
		if !ok {
			return nil, errors.New("protocol: unterminated field list")
		}
		if tag == 0 {
			break
		}
		msg, err := r.cstring()
		if err != nil {
			return nil, err
		}
		fields[tag] = msg
	}
	return fields, nil
}

// copyResponse is the shared shape of CopyIn/Out/BothResponse.
type copyResponse struct {
	Format        DataFormat
	ColumnFormats []DataFormat
}

func decodeCopyResponse(r *reader) (copyResponse, error) {
	var zero copyResponse
	format, ok := r.byte()
	if !ok {
		return zero, errors.New("protocol: truncated copy response")
	}
	n, err := r.int16()
	if err != nil {
		return zero, err
	}
	formats := make([]DataFormat, 0, n)
	for i := int16(0); i < n; i++ {
		f, err := r.int16()
		if err != nil {
			return zero, err
		}
		formats = append(formats, DataFormat(f))
	}
	return copyResponse{Format: DataFormat(format), ColumnFormats: formats}, nil
}
