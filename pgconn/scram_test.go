package pgconn

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mevdschee/pgwire/pgconfig"
)

func TestParseSCRAMFields(t *testing.T) {
	fields := parseSCRAMFields("r=abc123,s=c2FsdA==,i=4096")
	if fields["r"] != "abc123" || fields["s"] != "c2FsdA==" || fields["i"] != "4096" {
		t.Fatalf("unexpected fields: %#v", fields)
	}
}

func TestXorBytes(t *testing.T) {
	a := []byte{0x0F, 0xF0, 0xAA}
	b := []byte{0xFF, 0xFF, 0x55}
	got := xorBytes(a, b)
	want := []byte{0xF0, 0x0F, 0xFF}
	if !bytes.Equal(got, want) {
		t.Errorf("xorBytes(%x, %x) = %x, want %x", a, b, got, want)
	}
}

func TestRespondSASLInitSendsClientFirstMessage(t *testing.T) {
	client, server := newMockConn()
	defer client.Close()
	defer server.Close()

	opts := pgconfig.Default()
	opts.User = "alice"
	c := New(client, opts)

	done := make(chan []byte, 1)
	go func() {
		tag, payload, err := readFrontendMessage(server)
		if err != nil {
			done <- nil
			return
		}
		if tag != 'p' {
			done <- nil
			return
		}
		done <- payload
	}()

	if err := c.respondSASLInit([]string{"SCRAM-SHA-256"}); err != nil {
		t.Fatalf("respondSASLInit: %v", err)
	}

	payload := <-done
	if payload == nil {
		t.Fatal("expected a SASLInitialResponse to be written")
	}
	s := string(payload)
	if !strings.Contains(s, "SCRAM-SHA-256") {
		t.Errorf("expected mechanism name in payload, got %q", s)
	}
	if !strings.Contains(s, "n=alice") {
		t.Errorf("expected client-first-message bare to contain n=alice, got %q", s)
	}
	if c.scram == nil {
		t.Fatal("expected scramClient state to be initialized")
	}
}

func TestRespondSASLInitRejectsUnsupportedMechanism(t *testing.T) {
	client, server := newMockConn()
	defer client.Close()
	defer server.Close()

	c := New(client, pgconfig.Default())
	if err := c.respondSASLInit([]string{"GS2-KRB5"}); err == nil {
		t.Fatal("expected an error for an unsupported SASL mechanism")
	}
}
