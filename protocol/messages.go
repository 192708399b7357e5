// Package protocol implements PostgreSQL frontend/backend wire protocol v3
// message framing: one-byte tag + big-endian uint32 length (length includes
// itself) + payload, with NUL-terminated strings and DataRow columns
// encoded as length-prefixed (-1 = NULL) byte runs.
//
// Framing is grounded on the teacher's own readMessage/writeMessage/
// encodeMessage trio (see DESIGN.md); the message set is the one spec.md
// §4.D names, plus the SASL/SCRAM sub-messages SPEC_FULL.md supplements.
package protocol

// Frontend message tags. Startup and SSLRequest/CancelRequest carry no tag
// byte (they are untagged, length-prefixed messages at the very start of
// the wire).
const (
	TagPasswordMessage byte = 'p'
	TagParse           byte = 'P'
	TagBind            byte = 'B'
	TagDescribe        byte = 'D'
	TagExecute         byte = 'E'
	TagSync            byte = 'S'
	TagQuery           byte = 'Q'
	TagClose           byte = 'C'
	TagTerminate       byte = 'X'
	TagCopyData        byte = 'd'
	TagCopyDone        byte = 'c'
	TagCopyFail        byte = 'f'
)

// Backend message tags.
const (
	TagAuthentication       byte = 'R'
	TagParameterStatus      byte = 'S'
	TagBackendKeyData       byte = 'K'
	TagReadyForQuery        byte = 'Z'
	TagRowDescription       byte = 'T'
	TagDataRow              byte = 'D'
	TagCommandComplete      byte = 'C'
	TagEmptyQueryResponse   byte = 'I'
	TagNoticeResponse       byte = 'N'
	TagNotificationResponse byte = 'A'
	TagParseComplete        byte = '1'
	TagBindComplete         byte = '2'
	TagCloseComplete        byte = '3'
	TagParameterDescription byte = 't'
	TagNoData               byte = 'n'
	TagErrorResponse        byte = 'E'
	TagCopyInResponse       byte = 'G'
	TagCopyOutResponse      byte = 'H'
	TagCopyBothResponse     byte = 'W'
	TagPortalSuspended      byte = 's'
)

// Authentication sub-codes carried in the int32 that follows the
// Authentication message tag and length.
const (
	AuthOK                = 0
	AuthKerberosV5        = 2
	AuthCleartextPassword = 3
	AuthMD5Password       = 5
	AuthSCMCredential     = 6
	AuthGSS               = 7
	AuthGSSContinue       = 8
	AuthSSPI              = 9
	AuthSASL              = 10
	AuthSASLContinue      = 11
	AuthSASLFinal         = 12
)

// TransactionStatus is the status byte on ReadyForQuery.
type TransactionStatus byte

const (
	TransactionIdle     TransactionStatus = 'I'
	TransactionBlock    TransactionStatus = 'T'
	TransactionFailed   TransactionStatus = 'E'
)

// DataFormat distinguishes the text and binary wire formats spec.md's Data
// model carries.
type DataFormat int16

const (
	FormatText   DataFormat = 0
	FormatBinary DataFormat = 1
)

// Field is a single column value in a DataRow: -1 length means SQL NULL.
type Field struct {
	Bytes []byte
	Null  bool
}

// BackendMessage is implemented by every decoded backend message type.
type BackendMessage interface {
	backendMessage()
}

type AuthenticationOk struct{}
type AuthenticationCleartextPassword struct{}
type AuthenticationMD5Password struct{ Salt [4]byte }
type AuthenticationSASL struct{ Mechanisms []string }
type AuthenticationSASLContinue struct{ Data []byte }
type AuthenticationSASLFinal struct{ Data []byte }

type ParameterStatus struct{ Name, Value string }
type BackendKeyData struct {
	ProcessID int32
	SecretKey int32
}
type ReadyForQuery struct{ Status TransactionStatus }

type FieldDescription struct {
	Name         string
	TableOID     int32
	ColumnAttNum int16
	TypeOID      int32
	TypeSize     int16
	TypeMod      int32
	Format       DataFormat
}
type RowDescription struct{ Fields []FieldDescription }
type DataRow struct{ Columns []Field }
type CommandComplete struct{ Tag string }
type EmptyQueryResponse struct{}
type NoticeResponse struct{ Fields map[byte]string }
type NotificationResponse struct {
	ProcessID int32
	Channel   string
	Payload   string
}
type ParseComplete struct{}
type BindComplete struct{}
type CloseComplete struct{}
type ParameterDescription struct{ OIDs []int32 }
type NoData struct{}
type ErrorResponse struct{ Fields map[byte]string }
type CopyInResponse struct {
	Format        DataFormat
	ColumnFormats []DataFormat
}
type CopyOutResponse struct {
	Format        DataFormat
	ColumnFormats []DataFormat
}
type CopyBothResponse struct {
	Format        DataFormat
	ColumnFormats []DataFormat
}
type PortalSuspended struct{}

func (AuthenticationOk) backendMessage()                {}
func (AuthenticationCleartextPassword) backendMessage() {}
func (AuthenticationMD5Password) backendMessage()       {}
func (AuthenticationSASL) backendMessage()              {}
func (AuthenticationSASLContinue) backendMessage()      {}
func (AuthenticationSASLFinal) backendMessage()         {}
func (ParameterStatus) backendMessage()                 {}
func (BackendKeyData) backendMessage()                  {}
func (ReadyForQuery) backendMessage()                   {}
func (RowDescription) backendMessage()                  {}
func (DataRow) backendMessage()                         {}
func (CommandComplete) backendMessage()                 {}
func (EmptyQueryResponse) backendMessage()               {}
func (NoticeResponse) backendMessage()                  {}
func (NotificationResponse) backendMessage()            {}
func (ParseComplete) backendMessage()                   {}
func (BindComplete) backendMessage()                    {}
func (CloseComplete) backendMessage()                   {}
func (ParameterDescription) backendMessage()            {}
func (NoData) backendMessage()                          {}
func (ErrorResponse) backendMessage()                   {}
func (CopyInResponse) backendMessage()                  {}
func (CopyOutResponse) backendMessage()                 {}
func (CopyBothResponse) backendMessage()                {}
func (PortalSuspended) backendMessage()                 {}
