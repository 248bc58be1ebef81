package webseed

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

type rateLimitedReader struct {
	ctx context.Context
	l   *rate.Limiter
	r   io.Reader
}

func (me rateLimitedReader) Read(b []byte) (n int, err error) {
	if me.l.Burst() != 0 {
		b = b[:min(len(b), me.l.Burst())]
	}
	n, err = me.r.Read(b)
	if n != 0 {
		waitErr := me.l.WaitN(me.ctx, n)
		if err == nil {
			err = waitErr
		}
	}
	return
}
