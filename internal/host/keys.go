package host

import (
	"bufio"
	"context"
	"io"
	"time"
)

// ReaderKeySource turns a character stream (a terminal a wedge scanner types into)
// into keystrokes. CR and LF become Enter.
type ReaderKeySource struct {
	r   io.Reader
	now func() time.Time
}

// NewReaderKeySource returns a key source over r.
func NewReaderKeySource(r io.Reader) *ReaderKeySource {
	return &ReaderKeySource{r: r, now: time.Now}
}

// Listen starts reading runes until ctx is done or the reader is exhausted.
// A blocked read on r is not interrupted; the goroutine exits on the next rune.
func (s *ReaderKeySource) Listen(ctx context.Context) (<-chan Keystroke, error) {
	out := make(chan Keystroke, 64)
	br := bufio.NewReader(s.r)

	go func() {
		defer close(out)

		for {
			r, _, err := br.ReadRune()
			if err != nil {
				return
			}

			key := string(r)
			if r == '\r' || r == '\n' {
				key = Enter
			}

			select {
			case out <- Keystroke{Key: key, At: s.now()}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
