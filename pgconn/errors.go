package pgconn

import "github.com/mevdschee/pgwire/pgerr"

// ErrCopyNotSupported is raised when the backend switches to COPY mode;
// spec.md's supplement treats COPY as an unsupported protocol branch
// rather than a silently-ignored one.
var ErrCopyNotSupported = pgerr.New(pgerr.ProtocolError, "pgconn: COPY protocol is not supported by this connection core")
