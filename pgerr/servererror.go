package pgerr

import "strconv"

// ErrorCode is a five-character SQLSTATE code.
type ErrorCode string

// Class returns the error class, the first two characters of the code.
func (c ErrorCode) Class() ErrorClass {
	if len(c) < 2 {
		return ""
	}
	return ErrorClass(c[0:2])
}

// Name returns the condition name for the code, e.g. "unique_violation".
func (c ErrorCode) Name() string {
	return errorCodeNames[c]
}

// ErrorClass is the class portion of a SQLSTATE code, e.g. "23".
type ErrorClass string

// Name returns the condition name of the class's "standard" code (the one
// ending in "000").
func (c ErrorClass) Name() string {
	return errorCodeNames[ErrorCode(c+"000")]
}

// ServerError carries the full set of fields a PostgreSQL ErrorResponse or
// NoticeResponse may contain, keyed by the same single-byte field tags the
// wire protocol uses.
type ServerError struct {
	Severity         string
	Code             ErrorCode
	Message          string
	Detail           string
	Hint             string
	Position         string
	InternalPosition string
	InternalQuery    string
	Where            string
	Schema           string
	Table            string
	Column           string
	DataTypeName     string
	Constraint       string
	File             string
	Line             string
	Routine          string
}

// SQLState returns the SQLSTATE code as a plain string.
func (e *ServerError) SQLState() string { return string(e.Code) }

// Fatal reports whether the severity indicates the connection is unusable.
func (e *ServerError) Fatal() bool {
	return e.Severity == "FATAL" || e.Severity == "PANIC"
}

func (e *ServerError) Error() string {
	if e.Code != "" {
		return e.Severity + ": " + e.Message + " (" + string(e.Code) + ")"
	}
	return e.Severity + ": " + e.Message
}

// ParseFields builds a ServerError from the field tag/value pairs decoded
// out of an ErrorResponse or NoticeResponse payload.
func ParseFields(fields map[byte]string) *ServerError {
	e := &ServerError{}
	for tag, msg := range fields {
		switch tag {
		case 'S':
			e.Severity = msg
		case 'C':
			e.Code = ErrorCode(msg)
		case 'M':
			e.Message = msg
		case 'D':
			e.Detail = msg
		case 'H':
			e.Hint = msg
		case 'P':
			e.Position = msg
		case 'p':
			e.InternalPosition = msg
		case 'q':
			e.InternalQuery = msg
		case 'W':
			e.Where = msg
		case 's':
			e.Schema = msg
		case 't':
			e.Table = msg
		case 'c':
			e.Column = msg
		case 'd':
			e.DataTypeName = msg
		case 'n':
			e.Constraint = msg
		case 'F':
			e.File = msg
		case 'L':
			e.Line = msg
		case 'R':
			e.Routine = msg
		}
	}
	return e
}

// PositionInt returns Position parsed as an integer, or 0 if absent/invalid.
func (e *ServerError) PositionInt() int {
	n, err := strconv.Atoi(e.Position)
	if err != nil {
		return 0
	}
	return n
}

// errorCodeNames maps SQLSTATE codes reachable from connection handshake
// and query execution to their condition names, trimmed from the full
// PostgreSQL errcodes appendix to the classes this client actually surfaces.
var errorCodeNames = map[ErrorCode]string{
	"00000": "successful_completion",
	"01000": "warning",
	"02000": "no_data",
	"03000": "sql_statement_not_yet_complete",
	"08000": "connection_exception",
	"08003": "connection_does_not_exist",
	"08006": "connection_failure",
	"08001": "sqlclient_unable_to_establish_sqlconnection",
	"08004": "sqlserver_rejected_establishment_of_sqlconnection",
	"08007": "transaction_resolution_unknown",
	"08P01": "protocol_violation",
	"0A000": "feature_not_supported",
	"21000": "cardinality_violation",
	"22000": "data_exception",
	"22001": "string_data_right_truncation",
	"22003": "numeric_value_out_of_range",
	"22007": "invalid_datetime_format",
	"22012": "division_by_zero",
	"22P02": "invalid_text_representation",
	"23000": "integrity_constraint_violation",
	"23502": "not_null_violation",
	"23503": "foreign_key_violation",
	"23505": "unique_violation",
	"23514": "check_violation",
	"25000": "invalid_transaction_state",
	"25P02": "in_failed_sql_transaction",
	"28000": "invalid_authorization_specification",
	"28P01": "invalid_password",
	"3D000": "invalid_catalog_name",
	"40001": "serialization_failure",
	"40P01": "deadlock_detected",
	"42000": "syntax_error_or_access_rule_violation",
	"42601": "syntax_error",
	"42703": "undefined_column",
	"42883": "undefined_function",
	"42P01": "undefined_table",
	"53000": "insufficient_resources",
	"53300": "too_many_connections",
	"57014": "query_canceled",
	"57P01": "admin_shutdown",
	"58000": "system_error",
	"XX000": "internal_error",
}
