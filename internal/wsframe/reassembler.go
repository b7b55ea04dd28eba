package wsframe

import (
	"github.com/syrahproxy/syrah/internal/errs"
)

// Message is a fully reassembled data message (Text or Binary), or an
// immediately-emitted control frame.
type Message struct {
	Opcode  Opcode
	Payload []byte
}

// Reassembler accumulates fragmented data frames into complete messages:
// only Text/Binary may be fragmented, and control frames are emitted
// immediately without disturbing the reassembly buffer.
type Reassembler struct {
	active bool
	opcode Opcode
	buf    []byte
}

// Feed processes one decoded frame. msg is non-nil when a complete message
// (data or control) is ready for delivery.
func (r *Reassembler) Feed(f Frame) (*Message, error) {
	if IsControl(f.Opcode) {
		if f.Opcode == OpClose {
			if len(f.Payload) == 1 {
				return nil, errs.New(errs.KindParse, "close frame payload must be 0 or >=2 bytes", nil)
			}
		}
		return &Message{Opcode: f.Opcode, Payload: f.Payload}, nil
	}

	switch f.Opcode {
	case OpText, OpBinary:
		if r.active {
			return nil, errs.New(errs.KindParse, "new data frame while a fragmented message is in progress", nil)
		}
		if f.FIN {
			return &Message{Opcode: f.Opcode, Payload: f.Payload}, nil
		}
		r.active = true
		r.opcode = f.Opcode
		r.buf = append([]byte(nil), f.Payload...)
		return nil, nil

	case OpContinuation:
		if !r.active {
			return nil, errs.New(errs.KindParse, "continuation frame with no fragmented message in progress", nil)
		}
		r.buf = append(r.buf, f.Payload...)
		if !f.FIN {
			return nil, nil
		}
		msg := &Message{Opcode: r.opcode, Payload: r.buf}
		r.active = false
		r.opcode = 0
		r.buf = nil
		return msg, nil

	default:
		return nil, errs.New(errs.KindParse, "unknown WebSocket opcode", nil)
	}
}
