package internal

import "log/slog"

// SlogAPID returns a slog.Attr for an 11-bit Application Process
// Identifier without allocating a string.
func SlogAPID(key string, apid uint16) slog.Attr {
	return slog.Uint64(key, uint64(apid))
}

// SlogFHP returns a slog.Attr for a First Header Pointer value, rendering
// the two reserved sentinels by name instead of their raw integer value.
func SlogFHP(key string, fhp uint16) slog.Attr {
	switch fhp {
	case 0x7FE:
		return slog.String(key, "NO_PACKET_START")
	case 0x7FF:
		return slog.String(key, "IDLE_FRAME_PATTERN")
	default:
		return slog.Uint64(key, uint64(fhp))
	}
}
