package build

import "bytes"

// DefaultOutputLimit caps the captured stdout and stderr of each command.
const DefaultOutputLimit = 500 * 1024

// cappedBuffer keeps the first limit bytes written to it and drops the
// rest. Writes never fail so the child never sees a broken pipe.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.limit - b.buf.Len()
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

// Bytes returns the captured output.
func (b *cappedBuffer) Bytes() []byte {
	return b.buf.Bytes()
}
