package peer_protocol

import (
	"bufio"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Returned by Decoder after skipping a message it can't parse. The stream is still framed, so
// decoding can continue.
type UnknownMessageTypeError struct {
	Type MessageType
}

func (me UnknownMessageTypeError) Error() string {
	return fmt.Sprintf("unknown message type %#x", byte(me.Type))
}

type Decoder struct {
	R         *bufio.Reader
	MaxLength Integer
}

// io.EOF is returned if the source terminates cleanly on a message boundary.
func (d *Decoder) Decode(msg *Message) (err error) {
	var length Integer
	err = length.Read(d.R)
	if err != nil {
		if err == io.EOF {
			return
		}
		return fmt.Errorf("reading message length: %w", err)
	}
	if length > d.MaxLength {
		return errors.New("message too long")
	}
	*msg = Message{}
	if length == 0 {
		msg.Keepalive = true
		return
	}
	r := d.R
	// From this point onwards, EOF is unexpected
	defer func() {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
	}()
	c, err := r.ReadByte()
	if err != nil {
		return
	}
	length--
	msg.Type = MessageType(c)
	switch msg.Type {
	case Choke, Unchoke, Interested, NotInterested, HaveAll, HaveNone:
	case Have:
		if length != 4 {
			return fmt.Errorf("bad length %v for message type %v", length, msg.Type)
		}
		err = msg.Index.Read(r)
		length -= 4
	case Request, Cancel, Reject:
		if length != 12 {
			return fmt.Errorf("bad length %v for message type %v", length, msg.Type)
		}
		for _, data := range []*Integer{&msg.Index, &msg.Begin, &msg.Length} {
			err = data.Read(r)
			if err != nil {
				return
			}
		}
		length -= 12
	case Bitfield:
		b := make([]byte, length)
		_, err = io.ReadFull(r, b)
		msg.Bitfield = unmarshalBitfield(b)
		return
	case Piece:
		if length < 8 {
			return errors.Errorf("piece message too short: %d", length)
		}
		for _, pi := range []*Integer{&msg.Index, &msg.Begin} {
			err = pi.Read(r)
			if err != nil {
				return
			}
		}
		length -= 8
		msg.Piece = make([]byte, length)
		_, err = io.ReadFull(r, msg.Piece)
		return
	default:
		// Skip what we don't understand so the stream stays framed.
		_, err = r.Discard(int(length))
		if err == nil {
			err = UnknownMessageTypeError{msg.Type}
		}
		return
	}
	if err == nil && length != 0 {
		err = fmt.Errorf("%v unused bytes in message type %v", length, msg.Type)
	}
	return
}
