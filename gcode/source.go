package gcode

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// JobSource exposes a loaded, validated job as an indexed, seekable line
// feed. Both variants (in-memory and streaming-file) implement it
// identically from the caller's point of view.
type JobSource interface {
	// Len returns the number of lines in the job.
	Len() int
	// Get returns the 1-based line i (1 <= i <= Len()).
	Get(i int) (Line, error)
	// IterFrom calls fn for every line starting at the 1-based index from,
	// in order, until fn returns false or the job ends.
	IterFrom(from int, fn func(Line) bool) error
	// Close releases any resources (temp file) held by the source.
	Close() error
}

// InMemorySource holds the entire processed job in memory.
type InMemorySource struct {
	lines []Line
}

func (s *InMemorySource) Len() int { return len(s.lines) }

func (s *InMemorySource) Get(i int) (Line, error) {
	if i < 1 || i > len(s.lines) {
		return Line{}, fmt.Errorf("line %d out of range (1..%d)", i, len(s.lines))
	}
	return s.lines[i-1], nil
}

func (s *InMemorySource) IterFrom(from int, fn func(Line) bool) error {
	if from < 1 {
		from = 1
	}
	for i := from; i <= len(s.lines); i++ {
		if !fn(s.lines[i-1]) {
			return nil
		}
	}
	return nil
}

func (s *InMemorySource) Close() error { return nil }

// StreamingFileSource persists the processed job to a temp file with a
// line-offset index, so only offsets (not G-code text) are held for the
// bulk of the job. A small bounded cache keeps recently touched lines in
// memory instead of mmap'ing, per DESIGN.md's resumable-streaming decision.
type StreamingFileSource struct {
	path      string
	f         *os.File
	offsets   []int64 // byte offset of line i (0-based index i-1)
	lengths   []int32
	sourceNum []int32
	cache     map[int]Line
	cacheFIFO []int
	cacheCap  int

	pendingOffset int64 // next write offset while the loader is still appending
}

const streamingCacheCapacity = 256

func newStreamingFileSource(path string, f *os.File) *StreamingFileSource {
	return &StreamingFileSource{
		path:     path,
		f:        f,
		cache:    make(map[int]Line, streamingCacheCapacity),
		cacheCap: streamingCacheCapacity,
	}
}

func (s *StreamingFileSource) appendIndexed(raw []byte, offset int64, sourceLine int) {
	s.offsets = append(s.offsets, offset)
	s.lengths = append(s.lengths, int32(len(raw)))
	s.sourceNum = append(s.sourceNum, int32(sourceLine))
}

func (s *StreamingFileSource) Len() int { return len(s.offsets) }

func (s *StreamingFileSource) Get(i int) (Line, error) {
	if i < 1 || i > len(s.offsets) {
		return Line{}, fmt.Errorf("line %d out of range (1..%d)", i, len(s.offsets))
	}
	if l, ok := s.cache[i]; ok {
		return l, nil
	}
	buf := make([]byte, s.lengths[i-1])
	if _, err := s.f.ReadAt(buf, s.offsets[i-1]); err != nil && err != io.EOF {
		return Line{}, fmt.Errorf("reading streamed job line %d: %w", i, err)
	}
	line := Line{Raw: buf, Number: i, SourceLine: int(s.sourceNum[i-1])}
	s.cachePut(i, line)
	return line, nil
}

func (s *StreamingFileSource) cachePut(i int, l Line) {
	if len(s.cache) >= s.cacheCap {
		oldest := s.cacheFIFO[0]
		s.cacheFIFO = s.cacheFIFO[1:]
		delete(s.cache, oldest)
	}
	s.cache[i] = l
	s.cacheFIFO = append(s.cacheFIFO, i)
}

func (s *StreamingFileSource) IterFrom(from int, fn func(Line) bool) error {
	if from < 1 {
		from = 1
	}
	for i := from; i <= s.Len(); i++ {
		line, err := s.Get(i)
		if err != nil {
			return err
		}
		if !fn(line) {
			return nil
		}
	}
	return nil
}

func (s *StreamingFileSource) Close() error {
	err := s.f.Close()
	os.Remove(s.path)
	return err
}

// newTempSink opens a fresh temp file to back a StreamingFileSource, in dir
// (or the OS default if dir is empty).
func newTempSink(dir string) (*os.File, error) {
	f, err := os.CreateTemp(dir, "simple-sender-job-*.gcode")
	if err != nil {
		return nil, &LoadError{Kind: NotWritableForTemp, Detail: err.Error(), Err: err}
	}
	return f, nil
}

// bufferedWriter is a tiny convenience over bufio.Writer for the migration
// path (in-memory -> streaming) so callers don't need to track flush calls.
func bufferedWriter(f *os.File) *bufio.Writer { return bufio.NewWriterSize(f, 64*1024) }
