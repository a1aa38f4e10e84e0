package ccsds

// Error is the codec's error taxonomy. Each value corresponds to one of the
// failure classes a TM assembler/packetizer pair can raise. The zero value is
// never returned by the codec.
type Error uint8

// Error classes raised by the assembler and packetizer.
const (
	_                      Error = iota // non-initialized err
	ErrBadConfiguration                 // transfer frame size too small to hold a minimal idle packet
	ErrMalformedPacket                  // packet length disagrees with its length field
	ErrMalformedFrame                   // frame length/FHP/fixed header bits invalid, or FECF mismatch
	ErrUnexpectedSpillover              // frame claims pure spillover but packetizer has no pending packet
	ErrOrphanSpillover                  // frame has a nonzero FHP prefix but packetizer has no pending packet
)

func (err Error) Error() string {
	return err.String()
}

func (err Error) String() string {
	switch err {
	case ErrBadConfiguration:
		return "bad configuration"
	case ErrMalformedPacket:
		return "malformed TM packet"
	case ErrMalformedFrame:
		return "malformed TM transfer frame"
	case ErrUnexpectedSpillover:
		return "unexpected spillover"
	case ErrOrphanSpillover:
		return "orphan spillover"
	default:
		return "unknown ccsds error"
	}
}
