package netio

import (
	"io"
	"sync"
)

// Pipe returns a connected pair of in-memory Streams, for tests that
// exercise the handshake or session loops without a real network
// connection. Unlike net.Pipe, each side supports CloseWrite as a true
// half-close: the peer observes io.EOF on Read but can keep writing.
func Pipe() (Stream, Stream) {
	r1, w1 := io.Pipe()
	r2, w2 := io.Pipe()

	a := &pipeStream{reader: r1, writer: w2}
	b := &pipeStream{reader: r2, writer: w1}
	return a, b
}

type pipeStream struct {
	reader *io.PipeReader
	writer *io.PipeWriter

	mu          sync.Mutex
	writeClosed bool
}

func (p *pipeStream) Read(b []byte) (int, error) {
	return p.reader.Read(b)
}

func (p *pipeStream) Write(b []byte) (int, error) {
	return p.writer.Write(b)
}

func (p *pipeStream) CloseWrite() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeClosed {
		return nil
	}
	p.writeClosed = true
	return p.writer.CloseWithError(io.EOF)
}

func (p *pipeStream) Close() error {
	p.CloseWrite()
	return p.reader.CloseWithError(io.ErrClosedPipe)
}
