package wire

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name     string
		color    Color
		nPackets uint16
		seq      uint16
		payload  []byte
	}{
		{"empty payload", ColorRed, 1, 0, nil},
		{"small payload", ColorBlue, 3, 2, []byte("hello")},
		{"max payload", ColorBlack, 1, 0, bytes.Repeat([]byte{0xAB}, MaxPayload())},
		{"keep-alive filler", ColorWhite, 1, 0, []byte{0}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			datagram := Encode(tc.color, tc.nPackets, tc.seq, tc.payload)
			if len(datagram) != UDPMaxBytes {
				t.Fatalf("encoded datagram length = %d, want %d", len(datagram), UDPMaxBytes)
			}

			got, err := Decode(datagram)
			if err != nil {
				t.Fatalf("Decode returned error: %v", err)
			}
			if got.Color != tc.color {
				t.Errorf("Color = %v, want %v", got.Color, tc.color)
			}
			if got.NPackets != tc.nPackets {
				t.Errorf("NPackets = %d, want %d", got.NPackets, tc.nPackets)
			}
			if got.Seq != tc.seq {
				t.Errorf("Seq = %d, want %d", got.Seq, tc.seq)
			}
			if !bytes.Equal(got.Payload, tc.payload) {
				t.Errorf("Payload = %v, want %v", got.Payload, tc.payload)
			}
		})
	}
}

func TestDecodeRejectsUndersizedDatagram(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	if err == nil {
		t.Fatal("expected error decoding undersized datagram, got nil")
	}
}

func TestDecodeRejectsOverrunPayloadLen(t *testing.T) {
	datagram := make([]byte, HeaderSize+4)
	datagram[5] = 0xFF // payload_len low byte: absurdly large
	datagram[6] = 0xFF
	_, err := Decode(datagram)
	if err == nil {
		t.Fatal("expected error decoding datagram with overrunning payload_len, got nil")
	}
}

func TestEncodePanicsOnOversizedPayload(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic encoding oversized payload")
		}
	}()
	Encode(ColorRed, 1, 0, bytes.Repeat([]byte{0}, MaxPayload()+1))
}

func TestColorOpposite(t *testing.T) {
	if ColorRed.Opposite() != ColorBlue {
		t.Errorf("ColorRed.Opposite() = %v, want ColorBlue", ColorRed.Opposite())
	}
	if ColorBlue.Opposite() != ColorRed {
		t.Errorf("ColorBlue.Opposite() = %v, want ColorRed", ColorBlue.Opposite())
	}
}
