package pipeline

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/mevdschee/pgwire/binding"
	"github.com/mevdschee/pgwire/protocol"
	"github.com/mevdschee/pgwire/sqlstmt"
)

// messageTags walks a stream of tagged, length-prefixed frontend
// messages and returns their tags in order, for asserting on the
// shape of a flushed batch without needing a frontend-message decoder.
func messageTags(t *testing.T, buf []byte) []byte {
	t.Helper()
	var tags []byte
	for len(buf) > 0 {
		if len(buf) < 5 {
			t.Fatalf("truncated message header: %d bytes left", len(buf))
		}
		tags = append(tags, buf[0])
		length := binary.BigEndian.Uint32(buf[1:5])
		total := 1 + int(length)
		if len(buf) < total {
			t.Fatalf("truncated message body: want %d bytes, have %d", total, len(buf))
		}
		buf = buf[total:]
	}
	return tags
}

func newBoundItem(t *testing.T, portal, stmtName, sql string, value []byte) Item {
	t.Helper()
	stmt, _, err := sqlstmt.Parse(sql)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	b := binding.New(stmt)
	if stmt.ParameterCount() > 0 {
		if err := b.Set(0, value); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	return Item{
		StatementName: stmtName,
		PortalName:    portal,
		Binding:       b,
		ResultFormats: []protocol.DataFormat{protocol.FormatText},
	}
}

func TestEnqueueReportsFullAtMaxBatchSize(t *testing.T) {
	p := New(2)
	item := newBoundItem(t, "", "s1", "SELECT $1", []byte("1"))

	queued, full, err := p.Enqueue(item)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if queued != 1 || full {
		t.Fatalf("expected queued=1 full=false, got queued=%d full=%v", queued, full)
	}

	queued, full, err = p.Enqueue(item)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if queued != 2 || !full {
		t.Fatalf("expected queued=2 full=true, got queued=%d full=%v", queued, full)
	}
}

func TestEnqueueRejectsUnboundParameter(t *testing.T) {
	p := New(0)
	stmt, _, err := sqlstmt.Parse("SELECT $1")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	b := binding.New(stmt)
	_, _, err = p.Enqueue(Item{StatementName: "s1", Binding: b})
	if err == nil {
		t.Fatalf("expected Enqueue to reject an unbound parameter")
	}
	if p.Len() != 0 {
		t.Fatalf("expected nothing queued after a rejected Enqueue")
	}
}

func TestFlushEmptyReturnsNil(t *testing.T) {
	p := New(0)
	if out := p.Flush(); out != nil {
		t.Fatalf("expected nil from Flush on an empty pipeline, got %d bytes", len(out))
	}
}

func TestFlushRendersOneSyncForWholeBatch(t *testing.T) {
	p := New(0)
	if _, _, err := p.Enqueue(newBoundItem(t, "p1", "s1", "SELECT $1", []byte("1"))); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, _, err := p.Enqueue(newBoundItem(t, "p2", "s1", "SELECT $1", []byte("2"))); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	out := p.Flush()
	if p.Len() != 0 {
		t.Fatalf("expected Flush to drain the queue")
	}

	syncMsg := []byte{'S', 0, 0, 0, 4}
	if n := bytes.Count(out, syncMsg); n != 1 {
		t.Fatalf("expected exactly one Sync message in the flushed batch, found %d", n)
	}
	if n := bytes.Count(out, []byte{'B'}); n < 2 {
		t.Fatalf("expected at least 2 Bind messages in the flushed batch")
	}

	tags := messageTags(t, out)
	want := []byte{'B', 'D', 'E', 'B', 'D', 'E', 'S'}
	if !bytes.Equal(tags, want) {
		t.Fatalf("expected message sequence %q, got %q", want, tags)
	}
}
