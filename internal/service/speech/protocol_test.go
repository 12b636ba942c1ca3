package speech

import (
	"bytes"
	"testing"
)

func TestFrameEncodeDecode(t *testing.T) {
	payload := []byte(`{"hello":"world"}`)
	original := NewFullClientRequest(payload, NoCompression)

	decoded, err := DecodeFrame(original.Encode())
	if err != nil {
		t.Fatalf("DecodeFrame err: %v", err)
	}
	if decoded.Header.MessageType != FullClientRequest || decoded.Header.Serialization != JSONSerialization {
		t.Fatalf("unexpected header: %+v", decoded.Header)
	}
	if !bytes.Equal(decoded.Payload, payload) {
		t.Fatalf("payload mismatch: %q", decoded.Payload)
	}
}

func TestAudioRequestSequenceFlags(t *testing.T) {
	cases := []struct {
		name     string
		sequence int32
		last     bool
		flags    MessageFlags
		wantSeq  int32
		wantLast bool
	}{
		{name: "middle", sequence: 2, flags: PositiveSequenceNumber, wantSeq: 2},
		{name: "last with sequence", sequence: 5, last: true, flags: NegativeSequenceNumber, wantSeq: -5, wantLast: true},
		{name: "last without sequence", sequence: 0, last: true, flags: LastPacketNoSequence, wantLast: true},
		{name: "no sequence", sequence: 0, flags: NoSequenceNumber},
	}
	for _, tc := range cases {
		frame := NewAudioRequest([]byte{1, 2, 3, 4}, tc.sequence, tc.last, NoCompression)
		if frame.Header.Flags != tc.flags {
			t.Fatalf("%s: flags %04b want %04b", tc.name, frame.Header.Flags, tc.flags)
		}

		decoded, err := DecodeFrame(frame.Encode())
		if err != nil {
			t.Fatalf("%s: DecodeFrame err: %v", tc.name, err)
		}
		if decoded.Sequence != tc.wantSeq || decoded.IsLast() != tc.wantLast {
			t.Fatalf("%s: sequence=%d last=%v", tc.name, decoded.Sequence, decoded.IsLast())
		}
	}
}

func TestFrameWithEventAndError(t *testing.T) {
	frame := &Frame{
		Header:    Header{MessageType: FullServerResponse, Flags: WithEvent, Serialization: JSONSerialization},
		Event:     EventTypeSessionFinished,
		SessionID: "session-1",
		Payload:   []byte("{}"),
	}
	decoded, err := DecodeFrame(frame.Encode())
	if err != nil {
		t.Fatalf("DecodeFrame err: %v", err)
	}
	if decoded.Event != EventTypeSessionFinished || decoded.SessionID != "session-1" {
		t.Fatalf("unexpected event frame: %+v", decoded)
	}

	connected := &Frame{
		Header:    Header{MessageType: FullServerResponse, Flags: WithEvent},
		Event:     EventTypeConnectionStarted,
		ConnectID: "conn-9",
	}
	decoded, err = DecodeFrame(connected.Encode())
	if err != nil {
		t.Fatalf("DecodeFrame err: %v", err)
	}
	if decoded.ConnectID != "conn-9" || decoded.SessionID != "" {
		t.Fatalf("unexpected connection frame: %+v", decoded)
	}

	errFrame := &Frame{
		Header:    Header{MessageType: ErrorMessage},
		ErrorCode: 45000001,
		Payload:   []byte("bad request"),
	}
	decoded, err = DecodeFrame(errFrame.Encode())
	if err != nil {
		t.Fatalf("DecodeFrame err: %v", err)
	}
	if decoded.ErrorCode != 45000001 || string(decoded.Payload) != "bad request" {
		t.Fatalf("unexpected error frame: %+v", decoded)
	}
}

func TestDecodeFrameRejectsMalformed(t *testing.T) {
	if _, err := DecodeFrame([]byte{0x11}); err == nil {
		t.Fatal("expected error for short header")
	}
	if _, err := DecodeFrame([]byte{0x21, 0x10, 0x10, 0x00, 0, 0, 0, 0}); err == nil {
		t.Fatal("expected error for unknown protocol version")
	}

	frame := NewFullClientRequest([]byte("payload"), NoCompression).Encode()
	if _, err := DecodeFrame(frame[:len(frame)-3]); err == nil {
		t.Fatal("expected error for truncated payload")
	}
}

func TestGzipRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("voice "), 100)
	compressed, err := compress(data, GzipCompression)
	if err != nil {
		t.Fatalf("compress err: %v", err)
	}
	if len(compressed) >= len(data) {
		t.Fatalf("expected compression, got %d >= %d", len(compressed), len(data))
	}

	frame := NewFullClientRequest(compressed, GzipCompression)
	decoded, err := DecodeFrame(frame.Encode())
	if err != nil {
		t.Fatalf("DecodeFrame err: %v", err)
	}
	body, err := decoded.Body()
	if err != nil {
		t.Fatalf("Body err: %v", err)
	}
	if !bytes.Equal(body, data) {
		t.Fatal("gzip body mismatch")
	}

	if _, err := compress(data, CompressionMethod(0b0111)); err == nil {
		t.Fatal("expected error for unsupported compression")
	}
}
