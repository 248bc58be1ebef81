package peer_protocol

import (
	"fmt"
)

const (
	Protocol = "\x13BitTorrent protocol"
)

type MessageType byte

// Message types from BEP 3, with the BEP 6 (Fast Extension) additions we can send.
const (
	Choke         MessageType = iota
	Unchoke                   // 1
	Interested                // 2
	NotInterested             // 3
	Have                      // 4
	Bitfield                  // 5
	Request                   // 6
	Piece                     // 7
	Cancel                    // 8

	// BEP 6
	HaveAll  MessageType = 0x0e
	HaveNone MessageType = 0x0f
	Reject   MessageType = 0x10
)

var messageTypeNames = map[MessageType]string{
	Choke:         "Choke",
	Unchoke:       "Unchoke",
	Interested:    "Interested",
	NotInterested: "NotInterested",
	Have:          "Have",
	Bitfield:      "Bitfield",
	Request:       "Request",
	Piece:         "Piece",
	Cancel:        "Cancel",
	HaveAll:       "HaveAll",
	HaveNone:      "HaveNone",
	Reject:        "Reject",
}

func (mt MessageType) String() string {
	if s, ok := messageTypeNames[mt]; ok {
		return s
	}
	return fmt.Sprintf("MessageType(%d)", byte(mt))
}

func protocolBytes() []byte {
	return []byte(Protocol)
}
