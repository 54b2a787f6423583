package vision

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// FrameSource yields frames one at a time. Next returns io.EOF when the feed
// ends. A frame that could not be decoded is returned together with an error
// wrapping ErrUnreadableFrame so the caller can skip it and keep reading.
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
}

const maxFrameLine = 1 << 20

// NDJSONSource reads one JSON-encoded Frame per line, as written by the
// external marker detector. Lines are read on a separate goroutine so that
// Next returns as soon as ctx is done, even while the feed is idle.
type NDJSONSource struct {
	reader *bufio.Reader
	lines  chan lineResult
	start  sync.Once
	index  int64
	now    func() time.Time
}

type lineResult struct {
	line    []byte
	tooLong bool
	err     error
}

func NewNDJSONSource(r io.Reader) *NDJSONSource {
	return &NDJSONSource{
		reader: bufio.NewReaderSize(r, 64*1024),
		lines:  make(chan lineResult),
		now:    time.Now,
	}
}

func (s *NDJSONSource) Next(ctx context.Context) (Frame, error) {
	s.start.Do(func() { go s.read() })
	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}
		var res lineResult
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case r, ok := <-s.lines:
			if !ok {
				return Frame{}, io.EOF
			}
			res = r
		}
		if res.err != nil {
			if errors.Is(res.err, io.EOF) {
				return Frame{}, io.EOF
			}
			return Frame{}, fmt.Errorf("read frame feed: %w", res.err)
		}
		if res.tooLong {
			s.index++
			return Frame{Index: s.index, Timestamp: s.now()}, fmt.Errorf("%w: line %d is longer than %d bytes", ErrUnreadableFrame, s.index, maxFrameLine)
		}
		line := bytes.TrimSpace(res.line)
		if len(line) == 0 {
			continue
		}
		s.index++

		var f Frame
		if err := json.Unmarshal(line, &f); err != nil {
			return Frame{Index: s.index, Timestamp: s.now()}, fmt.Errorf("%w: line %d: %v", ErrUnreadableFrame, s.index, err)
		}
		if f.Index == 0 {
			f.Index = s.index
		}
		if f.Timestamp.IsZero() {
			f.Timestamp = s.now()
		}
		return f, nil
	}
}

// read feeds s.lines until the underlying reader fails, then closes it.
func (s *NDJSONSource) read() {
	defer close(s.lines)
	for {
		line, tooLong, err := s.readLine()
		s.lines <- lineResult{line: line, tooLong: tooLong, err: err}
		if err != nil {
			return
		}
	}
}

// readLine returns the next line without its terminator. A line longer than
// maxFrameLine is consumed up to its newline and reported as tooLong, so the
// following line is still read normally.
func (s *NDJSONSource) readLine() ([]byte, bool, error) {
	var line []byte
	tooLong := false
	for {
		chunk, err := s.reader.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > maxFrameLine+1 {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) && (len(line) > 0 || tooLong) {
				return line, tooLong, nil
			}
			return nil, false, err
		}
		return line, tooLong, nil
	}
}

// SliceSource replays a fixed list of frames; used for replays and tests.
type SliceSource struct {
	frames []Frame
	pos    int
}

func NewSliceSource(frames []Frame) *SliceSource {
	return &SliceSource{frames: frames}
}

func (s *SliceSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.pos >= len(s.frames) {
		return Frame{}, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	if f.Index == 0 {
		f.Index = int64(s.pos)
	}
	return f, nil
}
