package ccsds

import "testing"

// TestCRC16CCITTKnownVector checks against the standard CRC-16/CCITT-FALSE
// check value for the ASCII string "123456789", 0x29B1.
func TestCRC16CCITTKnownVector(t *testing.T) {
	got := ComputeCRC16CCITT([]byte("123456789"))
	if got != 0x29B1 {
		t.Fatalf("got %#04x, want 0x29b1", got)
	}
}

func TestCRC16CCITTIncrementalMatchesOneShot(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	oneShot := ComputeCRC16CCITT(data)

	var c CRC16CCITT
	c.Write(data[:10])
	c.Write(data[10:])
	if c.Sum16() != oneShot {
		t.Fatalf("incremental sum %#04x != one-shot %#04x", c.Sum16(), oneShot)
	}
}

func TestCRC16CCITTResets(t *testing.T) {
	var c CRC16CCITT
	c.Write([]byte{1, 2, 3})
	c.Reset()
	if c.Sum16() != 0xFFFF {
		t.Fatalf("reset sum = %#04x, want 0xffff", c.Sum16())
	}
}
