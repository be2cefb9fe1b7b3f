package stream

import (
	"fmt"
	"io"
	"sync"
)

// Section positions rsc at start and returns a reader of exactly length
// bytes. Closing it closes rsc. The caller hands the result to the
// transport, which closes it when the response ends or the client leaves.
func Section(rsc io.ReadSeekCloser, start, length int64) (io.ReadCloser, error) {
	if start < 0 || length < 0 {
		return nil, fmt.Errorf("invalid section [%d,+%d)", start, length)
	}
	if start > 0 {
		if _, err := rsc.Seek(start, io.SeekStart); err != nil {
			return nil, fmt.Errorf("seek to %d: %w", start, err)
		}
	}
	return &sectionBody{r: io.LimitReader(rsc, length), c: rsc}, nil
}

type sectionBody struct {
	r    io.Reader
	c    io.Closer
	once sync.Once
	err  error
}

func (b *sectionBody) Read(p []byte) (int, error) {
	return b.r.Read(p)
}

// Close is idempotent.
func (b *sectionBody) Close() error {
	b.once.Do(func() { b.err = b.c.Close() })
	return b.err
}
