// Package ioutil provides the small stream-plumbing helpers the command
// binaries use to splice a local accepted connection to a Stream and back.
package ioutil

import (
	"io"
	"sync"
)

const bufSize = 4096

// Copy is a memory-conscious io.Copy: it prefers src's WriteTo or dst's
// ReadFrom when available (avoiding an extra buffer and copy), falling
// back to a fixed-size CopyBuffer otherwise.
func Copy(dst io.Writer, src io.Reader) (written int64, err error) {
	if wt, ok := src.(io.WriterTo); ok {
		return wt.WriteTo(dst)
	}
	if rt, ok := dst.(io.ReaderFrom); ok {
		return rt.ReadFrom(src)
	}
	buf := make([]byte, bufSize)
	return io.CopyBuffer(dst, src, buf)
}

// Pipe splices two bidirectional streams together, copying in both
// directions concurrently and closing both ends the moment either
// direction's copy returns (read error, EOF, or explicit close).
func Pipe(alice, bob io.ReadWriteCloser) (errA, errB error) {
	var closed sync.Once
	var wg sync.WaitGroup
	wg.Add(2)

	streamCopy := func(dst io.Writer, src io.ReadCloser, errp *error) {
		_, *errp = Copy(dst, src)
		wg.Done()
		closed.Do(func() {
			alice.Close()
			bob.Close()
		})
	}

	go streamCopy(alice, bob, &errA)
	go streamCopy(bob, alice, &errB)

	wg.Wait()
	return
}
