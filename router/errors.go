package router

import (
	"errors"
	"fmt"

	"github.com/anacrolix/swarmedge/types/infohash"
)

var (
	// Returned by Serve after Close.
	ErrClosed             = errors.New("router closed")
	ErrUnexpectedInfoHash = errors.New("unexpected info hash")
)

type UnexpectedInfoHashError struct {
	InfoHash infohash.T
}

func (me UnexpectedInfoHashError) Error() string {
	return fmt.Sprintf("unexpected info hash %v", me.InfoHash)
}

func (me UnexpectedInfoHashError) Unwrap() error {
	return ErrUnexpectedInfoHash
}
