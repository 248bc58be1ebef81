package peer_protocol

import (
	"bufio"
	"bytes"
	"encoding"
	"encoding/binary"
	"fmt"
	"io"
)

// A lazy union of the fields used by the message types we handle. Fields are ordered to minimize
// padding.
type Message struct {
	Piece                []byte
	Bitfield             []bool
	Index, Begin, Length Integer
	Type                 MessageType
	Keepalive            bool
}

var _ interface {
	encoding.BinaryUnmarshaler
	encoding.BinaryMarshaler
} = (*Message)(nil)

// Identifies a block within a piece.
type RequestSpec struct {
	Index, Begin, Length Integer
}

func (r RequestSpec) String() string {
	return fmt.Sprintf("{%d %d %d}", r.Index, r.Begin, r.Length)
}

func MakeRequestMessage(r RequestSpec) Message {
	return Message{
		Type:   Request,
		Index:  r.Index,
		Begin:  r.Begin,
		Length: r.Length,
	}
}

func MakeRejectMessage(r RequestSpec) Message {
	return Message{
		Type:   Reject,
		Index:  r.Index,
		Begin:  r.Begin,
		Length: r.Length,
	}
}

func (msg Message) RequestSpec() RequestSpec {
	length := msg.Length
	if msg.Type == Piece {
		length = Integer(len(msg.Piece))
	}
	return RequestSpec{msg.Index, msg.Begin, length}
}

func (msg Message) MustMarshalBinary() []byte {
	b, err := msg.MarshalBinary()
	if err != nil {
		panic(err)
	}
	return b
}

// Writes the message body, without the length prefix.
func (msg Message) writePayloadTo(w *bytes.Buffer) (err error) {
	err = w.WriteByte(byte(msg.Type))
	if err != nil {
		return
	}
	switch msg.Type {
	case Choke, Unchoke, Interested, NotInterested, HaveAll, HaveNone:
	case Have:
		err = binary.Write(w, binary.BigEndian, msg.Index)
	case Request, Cancel, Reject:
		for _, i := range []Integer{msg.Index, msg.Begin, msg.Length} {
			err = binary.Write(w, binary.BigEndian, i)
			if err != nil {
				break
			}
		}
	case Bitfield:
		_, err = w.Write(marshalBitfield(msg.Bitfield))
	case Piece:
		for _, i := range []Integer{msg.Index, msg.Begin} {
			err = binary.Write(w, binary.BigEndian, i)
			if err != nil {
				return
			}
		}
		_, err = w.Write(msg.Piece)
	default:
		err = fmt.Errorf("unknown message type: %v", msg.Type)
	}
	return
}

func (msg Message) MarshalBinary() (data []byte, err error) {
	var buf bytes.Buffer
	if !msg.Keepalive {
		err = msg.writePayloadTo(&buf)
		if err != nil {
			return
		}
	}
	data = make([]byte, 4+buf.Len())
	binary.BigEndian.PutUint32(data, uint32(buf.Len()))
	if buf.Len() != copy(data[4:], buf.Bytes()) {
		panic("bad copy")
	}
	return
}

// Writes the message with its length prefix in a single call to w.
func (msg Message) WriteTo(w io.Writer) (n int64, err error) {
	b, err := msg.MarshalBinary()
	if err != nil {
		return
	}
	written, err := w.Write(b)
	return int64(written), err
}

func (me *Message) UnmarshalBinary(b []byte) error {
	d := Decoder{
		R:         bufio.NewReader(bytes.NewReader(b)),
		MaxLength: Integer(len(b)),
	}
	err := d.Decode(me)
	if err != nil {
		return err
	}
	if d.R.Buffered() != 0 {
		return fmt.Errorf("%d trailing bytes", d.R.Buffered())
	}
	return nil
}

func marshalBitfield(bf []bool) (b []byte) {
	b = make([]byte, (len(bf)+7)/8)
	for i, have := range bf {
		if !have {
			continue
		}
		b[i/8] |= 1 << uint(7-i%8)
	}
	return
}

func unmarshalBitfield(b []byte) (bf []bool) {
	for _, c := range b {
		for i := 7; i >= 0; i-- {
			bf = append(bf, (c>>uint(i))&1 == 1)
		}
	}
	return
}
