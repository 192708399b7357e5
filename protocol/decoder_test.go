package protocol

import (
	"encoding/binary"
	"testing"
)

func rawMessage(tag byte, payload []byte) []byte {
	buf := make([]byte, 0, 5+len(payload))
	buf = append(buf, tag)
	lenBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBytes, uint32(len(payload)+4))
	buf = append(buf, lenBytes...)
	buf = append(buf, payload...)
	return buf
}

func TestDecoderReadyForQuery(t *testing.T) {
	d := NewDecoder()
	d.Feed(rawMessage(TagReadyForQuery, []byte{'I'}))

	msg, ok, err := d.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if !ok {
		t.Fatal("expected a complete message")
	}
	rfq, ok := msg.(ReadyForQuery)
	if !ok {
		t.Fatalf("expected ReadyForQuery, got %T", msg)
	}
	if rfq.Status != TransactionIdle {
		t.Errorf("expected idle status, got %c", rfq.Status)
	}
}

func TestDecoderIncompleteMessage(t *testing.T) {
	d := NewDecoder()
	full := rawMessage(TagReadyForQuery, []byte{'I'})
	d.Feed(full[:len(full)-1])

	_, ok, err := d.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected incomplete message to not be ready")
	}

	d.Feed(full[len(full)-1:])
	_, ok, err = d.Next()
	if err != nil || !ok {
		t.Fatalf("expected message to complete after feeding remaining byte, ok=%v err=%v", ok, err)
	}
}

func TestDecoderDataRowWithNull(t *testing.T) {
	payload := []byte{0, 2} // 2 columns
	payload = append(payload, 0, 0, 0, 2, '4', '2')
	payload = append(payload, 0xFF, 0xFF, 0xFF, 0xFF) // NULL
	d := NewDecoder()
	d.Feed(rawMessage(TagDataRow, payload))

	msg, ok, err := d.Next()
	if err != nil || !ok {
		t.Fatalf("Next failed: ok=%v err=%v", ok, err)
	}
	row := msg.(DataRow)
	if len(row.Columns) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(row.Columns))
	}
	if string(row.Columns[0].Bytes) != "42" {
		t.Errorf("expected column 0 = 42, got %q", row.Columns[0].Bytes)
	}
	if !row.Columns[1].Null {
		t.Errorf("expected column 1 to be NULL")
	}
}

func TestDecoderErrorResponseFields(t *testing.T) {
	payload := []byte{}
	payload = append(payload, 'S')
	payload = append(payload, "ERROR\x00"...)
	payload = append(payload, 'C')
	payload = append(payload, "42601\x00"...)
	payload = append(payload, 'M')
	payload = append(payload, "syntax error\x00"...)
	payload = append(payload, 0)

	d := NewDecoder()
	d.Feed(rawMessage(TagErrorResponse, payload))
	msg, ok, err := d.Next()
	if err != nil || !ok {
		t.Fatalf("Next failed: ok=%v err=%v", ok, err)
	}
	er := msg.(ErrorResponse)
	if er.Fields['C'] != "42601" {
		t.Errorf("expected code 42601, got %q", er.Fields['C'])
	}
	if er.Fields['M'] != "syntax error" {
		t.Errorf("expected message, got %q", er.Fields['M'])
	}
}

func TestDecoderMultipleMessagesInOneFeed(t *testing.T) {
	d := NewDecoder()
	d.Feed(rawMessage(TagParseComplete, nil))
	d.Feed(rawMessage(TagBindComplete, nil))

	msg1, ok, err := d.Next()
	if err != nil || !ok {
		t.Fatalf("first Next failed: ok=%v err=%v", ok, err)
	}
	if _, ok := msg1.(ParseComplete); !ok {
		t.Fatalf("expected ParseComplete, got %T", msg1)
	}

	msg2, ok, err := d.Next()
	if err != nil || !ok {
		t.Fatalf("second Next failed: ok=%v err=%v", ok, err)
	}
	if _, ok := msg2.(BindComplete); !ok {
		t.Fatalf("expected BindComplete, got %T", msg2)
	}
}
