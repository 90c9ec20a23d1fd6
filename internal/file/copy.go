// Package file holds small I/O helpers shared by the streaming paths.
package file

import (
	"context"
	"errors"
	"io"
)

const defaultBufSize = 32 << 10

// CopyWithContext copies from src to dst until EOF or error, checking for
// context cancellation between reads. A nil buf allocates a 32 KiB buffer.
// It returns the number of bytes written.
func CopyWithContext(ctx context.Context, dst io.Writer, src io.Reader, buf []byte) (int64, error) {
	if buf == nil {
		buf = make([]byte, defaultBufSize)
	}
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		nr, er := src.Read(buf)
		if nr > 0 {
			nw, ew := dst.Write(buf[:nr])
			if nw > 0 {
				written += int64(nw)
			}
			if ew != nil {
				return written, ew
			}
			if nw != nr {
				return written, io.ErrShortWrite
			}
		}
		if er != nil {
			if errors.Is(er, io.EOF) {
				return written, nil
			}
			return written, er
		}
	}
}
