package pgconn

import (
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/mevdschee/pgwire/binding"
	"github.com/mevdschee/pgwire/pgconfig"
	"github.com/mevdschee/pgwire/protocol"
	"github.com/mevdschee/pgwire/sqlstmt"
)

// newMockConn returns a buffered in-memory conn pair: the client end
// for the Connection under test, the server end for a goroutine-driven
// fake backend, matching the shape of the teacher's newMockConn helper
// (a paired in-memory net.Conn standing in for a real socket).
func newMockConn() (client, server net.Conn) {
	return newMockConnPair()
}

func rawMessage(tag byte, payload []byte) []byte {
	buf := make([]byte, 0, 5+len(payload))
	if tag != 0 {
		buf = append(buf, tag)
	}
	lenBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBytes, uint32(len(payload)+4))
	buf = append(buf, lenBytes...)
	buf = append(buf, payload...)
	return buf
}

func cstr(s string) []byte { return append([]byte(s), 0) }

func int32b(v int32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(v))
	return b
}

func int16b(v int16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(v))
	return b
}

func authOK() []byte { return rawMessage(protocol.TagAuthentication, int32b(0)) }

func authCleartext() []byte { return rawMessage(protocol.TagAuthentication, int32b(3)) }

func paramStatus(name, value string) []byte {
	return rawMessage(protocol.TagParameterStatus, append(cstr(name), cstr(value)...))
}

func backendKeyData(pid, key int32) []byte {
	return rawMessage(protocol.TagBackendKeyData, append(int32b(pid), int32b(key)...))
}

func readyForQuery(status byte) []byte {
	return rawMessage(protocol.TagReadyForQuery, []byte{status})
}

func parseComplete() []byte { return rawMessage(protocol.TagParseComplete, nil) }
func bindComplete() []byte  { return rawMessage(protocol.TagBindComplete, nil) }
func closeComplete() []byte { return rawMessage(protocol.TagCloseComplete, nil) }
func noData() []byte        { return rawMessage(protocol.TagNoData, nil) }

func parameterDescription(oids []int32) []byte {
	payload := int16b(int16(len(oids)))
	for _, o := range oids {
		payload = append(payload, int32b(o)...)
	}
	return rawMessage(protocol.TagParameterDescription, payload)
}

func rowDescription(names ...string) []byte {
	payload := int16b(int16(len(names)))
	for _, n := range names {
		payload = append(payload, cstr(n)...)
		payload = append(payload, int32b(0)...)  // table OID
		payload = append(payload, int16b(0)...)  // column attnum
		payload = append(payload, int32b(25)...) // type OID (text)
		payload = append(payload, int16b(-1)...) // type size
		payload = append(payload, int32b(-1)...) // type mod
		payload = append(payload, int16b(0)...)  // format
	}
	return rawMessage(protocol.TagRowDescription, payload)
}

func dataRow(cols ...string) []byte {
	payload := int16b(int16(len(cols)))
	for _, c := range cols {
		payload = append(payload, int32b(int32(len(c)))...)
		payload = append(payload, []byte(c)...)
	}
	return rawMessage(protocol.TagDataRow, payload)
}

func commandComplete(tag string) []byte {
	return rawMessage(protocol.TagCommandComplete, cstr(tag))
}

func errorResponse(fields map[byte]string) []byte {
	var payload []byte
	for k, v := range fields {
		payload = append(payload, k)
		payload = append(payload, cstr(v)...)
	}
	payload = append(payload, 0)
	return rawMessage(protocol.TagErrorResponse, payload)
}

func noticeResponse(fields map[byte]string) []byte {
	var payload []byte
	for k, v := range fields {
		payload = append(payload, k)
		payload = append(payload, cstr(v)...)
	}
	payload = append(payload, 0)
	return rawMessage(protocol.TagNoticeResponse, payload)
}

// readStartupMessage reads the one untagged message every session
// begins with: 4-byte length, then payload.
func readStartupMessage(r io.Reader) ([]byte, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf)
	payload := make([]byte, length-4)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// readFrontendMessage reads one tagged frontend message.
func readFrontendMessage(r io.Reader) (tag byte, payload []byte, err error) {
	head := make([]byte, 5)
	if _, err := io.ReadFull(r, head); err != nil {
		return 0, nil, err
	}
	tag = head[0]
	length := binary.BigEndian.Uint32(head[1:5])
	payload = make([]byte, length-4)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return tag, payload, nil
}

// dialConnected drives a Connection through the handshake against a
// scripted fake backend, returning once Connected. onServer, if set,
// runs in the server goroutine only after the handshake bytes are
// written, but may still race ahead of the caller's post-return setup
// (e.g. installing a signal handler) since nothing blocks the client
// from draining those bytes the moment they are written; tests that
// need to observe something after Connected should use
// dialConnectedWithServer instead.
func dialConnected(t *testing.T, onServer func(server net.Conn)) *Connection {
	t.Helper()
	c, _ := dialConnectedWithServer(t, onServer)
	return c
}

// dialConnectedWithServer is dialConnected plus the server end of the
// pair, for tests that script further server behavior after Connected
// is observed, with no race against client-side setup in between.
func dialConnectedWithServer(t *testing.T, onServer func(server net.Conn)) (*Connection, net.Conn) {
	t.Helper()
	client, server := newMockConn()
	t.Cleanup(func() { client.Close(); server.Close() })

	go func() {
		if _, err := readStartupMessage(server); err != nil {
			return
		}
		server.Write(authOK())
		server.Write(paramStatus("server_version", "16.0"))
		server.Write(backendKeyData(42, 99))
		server.Write(readyForQuery('I'))
		if onServer != nil {
			onServer(server)
		}
	}()

	opts := pgconfig.Default()
	c := New(client, opts)
	enc := protocol.NewEncoder()
	c.writeBuf = append(c.writeBuf, enc.StartupMessage(opts.StartupParameters())...)
	c.status = EstablishmentWriting
	if err := c.flushWrite(); err != nil {
		t.Fatalf("flushWrite: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.status != Connected {
		if c.status == Failure {
			t.Fatalf("connect failed: %v", c.Err())
		}
		if err := c.Pump(); err != nil {
			t.Fatalf("Pump: %v", err)
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for Connected")
		}
		if c.status != Connected {
			c.waitReadableOrWritable(50)
		}
	}
	return c, server
}

func TestConnectReachesConnected(t *testing.T) {
	c := dialConnected(t, nil)
	if got, ok := c.ServerParameter("server_version"); !ok || got != "16.0" {
		t.Errorf("expected server_version=16.0, got %q ok=%v", got, ok)
	}
	if c.ProcessID() != 42 {
		t.Errorf("expected ProcessID 42, got %d", c.ProcessID())
	}
	if c.TransactionStatus() != protocol.TransactionIdle {
		t.Errorf("expected idle transaction status, got %c", c.TransactionStatus())
	}
}

func TestPrepareDescribeExecuteUnprepareRoundTrip(t *testing.T) {
	c := dialConnected(t, func(server net.Conn) {
		// Prepare
		readFrontendMessage(server) // Parse
		readFrontendMessage(server) // Sync
		server.Write(parseComplete())
		server.Write(readyForQuery('I'))

		// Describe
		readFrontendMessage(server) // Describe
		readFrontendMessage(server) // Sync
		server.Write(parameterDescription([]int32{23}))
		server.Write(rowDescription("id", "name"))
		server.Write(readyForQuery('I'))

		// Execute
		readFrontendMessage(server) // Bind
		readFrontendMessage(server) // Describe portal
		readFrontendMessage(server) // Execute
		readFrontendMessage(server) // Sync
		server.Write(bindComplete())
		server.Write(dataRow("1", "alice"))
		server.Write(dataRow("2", "bob"))
		server.Write(commandComplete("SELECT 2"))
		server.Write(readyForQuery('I'))

		// Unprepare
		readFrontendMessage(server) // Close
		readFrontendMessage(server) // Sync
		server.Write(closeComplete())
		server.Write(readyForQuery('I'))
	})

	if err := c.Prepare("s1", "SELECT id, name FROM t WHERE id = $1"); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := c.WaitResponse(1000); err != nil {
		t.Fatalf("WaitResponse(prepare): %v", err)
	}

	if err := c.DescribePrepared("s1"); err != nil {
		t.Fatalf("DescribePrepared: %v", err)
	}
	if err := c.WaitResponse(1000); err != nil {
		t.Fatalf("WaitResponse(describe): %v", err)
	}
	entry, ok := c.PreparedEntry()
	if !ok {
		t.Fatal("expected a prepared entry after describe")
	}
	if len(entry.ParameterOIDs) != 1 || entry.ParameterOIDs[0] != 23 {
		t.Errorf("unexpected parameter OIDs: %v", entry.ParameterOIDs)
	}
	if len(entry.Row.Fields) != 2 {
		t.Errorf("expected 2 described fields, got %d", len(entry.Row.Fields))
	}

	stmt, _, err := sqlstmt.Parse("SELECT id, name FROM t WHERE id = $1")
	if err != nil {
		t.Fatalf("sqlstmt.Parse: %v", err)
	}
	b := binding.New(stmt)
	if err := b.Set(0, []byte("1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.ExecutePrepared("p1", "s1", b, nil, 0); err != nil {
		t.Fatalf("ExecutePrepared: %v", err)
	}

	var rows []protocol.DataRow
	if err := c.ForEach(1000, func(row protocol.DataRow) error {
		rows = append(rows, row)
		return nil
	}); err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if string(rows[0].Columns[1].Bytes) != "alice" {
		t.Errorf("expected first row name=alice, got %q", rows[0].Columns[1].Bytes)
	}

	if err := c.Unprepare("s1"); err != nil {
		t.Fatalf("Unprepare: %v", err)
	}
	if err := c.WaitResponse(1000); err != nil {
		t.Fatalf("WaitResponse(unprepare): %v", err)
	}
	if _, ok := c.Registry().Lookup("s1"); ok {
		t.Error("expected s1 to be gone from the registry after Unprepare")
	}
}

func TestServerErrorSurfacesAndAdvancesReadyForQuery(t *testing.T) {
	c := dialConnected(t, func(server net.Conn) {
		readFrontendMessage(server) // Query
		server.Write(errorResponse(map[byte]string{
			'S': "ERROR", 'C': "42601", 'M': "syntax error",
		}))
		server.Write(readyForQuery('I'))
	})

	if err := c.Perform("SELECT"); err != nil {
		t.Fatalf("Perform: %v", err)
	}
	if err := c.WaitResponse(1000); err != nil {
		t.Fatalf("WaitResponse: %v", err)
	}
	se, ok := c.ServerErr()
	if !ok {
		t.Fatal("expected a server error")
	}
	if se.SQLState() != "42601" {
		t.Errorf("expected SQLSTATE 42601, got %s", se.SQLState())
	}
	if c.IsAwaitingResponse() {
		t.Error("expected the request queue to drain after ReadyForQuery")
	}
}

func TestErrorResponseDuringHandshakeFails(t *testing.T) {
	client, server := newMockConn()
	t.Cleanup(func() { client.Close(); server.Close() })

	go func() {
		if _, err := readStartupMessage(server); err != nil {
			return
		}
		server.Write(errorResponse(map[byte]string{
			'S': "FATAL", 'C': "28P01", 'M': "password authentication failed",
		}))
	}()

	opts := pgconfig.Default()
	c := New(client, opts)
	enc := protocol.NewEncoder()
	c.writeBuf = append(c.writeBuf, enc.StartupMessage(opts.StartupParameters())...)
	c.status = EstablishmentWriting
	if err := c.flushWrite(); err != nil {
		t.Fatalf("flushWrite: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.status != Failure {
		if c.status == Connected {
			t.Fatal("expected handshake ErrorResponse to fail the connection, not connect it")
		}
		if err := c.Pump(); err != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for Failure")
		}
		if c.status != Failure {
			c.waitReadableOrWritable(50)
		}
	}
	if c.status != Failure {
		t.Fatalf("expected status Failure, got %v", c.status)
	}
	se, ok := c.ServerErr()
	if !ok {
		t.Fatal("expected the handshake ErrorResponse to be exposed as a server error")
	}
	if se.SQLState() != "28P01" {
		t.Errorf("expected SQLSTATE 28P01, got %s", se.SQLState())
	}
}

func TestNoticeHandlerInvokedDuringPump(t *testing.T) {
	// Connect first, with no server activity beyond the handshake, so
	// the custom handler is installed before any notice bytes exist —
	// PushNotice fires its handler synchronously at push time, so a
	// notice written before the handler is installed would reach the
	// default handler instead.
	c, server := dialConnectedWithServer(t, nil)

	var got protocol.NoticeResponse
	received := make(chan struct{})
	c.Signals().OnNotice = func(n protocol.NoticeResponse) { got = n; close(received) }

	server.Write(noticeResponse(map[byte]string{'S': "NOTICE", 'M': "hello"}))

	deadline := time.Now().Add(2 * time.Second)
	for {
		if err := c.Pump(); err != nil {
			t.Fatalf("Pump: %v", err)
		}
		select {
		case <-received:
			if got.Fields['M'] != "hello" {
				t.Errorf("expected notice message %q, got %q", "hello", got.Fields['M'])
			}
			return
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for notice delivery")
		}
		c.waitReadableOrWritable(20)
	}
}

func TestQuotingRequiresConnected(t *testing.T) {
	opts := pgconfig.Default()
	client, _ := newMockConn()
	defer client.Close()
	c := New(client, opts)

	if _, err := c.ToQuotedLiteral("it's"); err == nil {
		t.Fatal("expected ToQuotedLiteral to require a connected connection")
	}

	c.status = Connected
	lit, err := c.ToQuotedLiteral("it's")
	if err != nil {
		t.Fatalf("ToQuotedLiteral: %v", err)
	}
	if lit != "'it''s'" {
		t.Errorf("expected 'it''s', got %s", lit)
	}

	ident, err := c.ToQuotedIdentifier(`weird"name`)
	if err != nil {
		t.Fatalf("ToQuotedIdentifier: %v", err)
	}
	if ident != `"weird""name"` {
		t.Errorf("expected double-quoted identifier, got %s", ident)
	}

	hexLit, err := c.ToHexData([]byte{0xDE, 0xAD})
	if err != nil {
		t.Fatalf("ToHexData: %v", err)
	}
	if hexLit != "'\\xdead'" {
		t.Errorf("expected '\\xdead', got %s", hexLit)
	}
}
