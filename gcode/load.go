package gcode

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// LoadOptions configures the streaming threshold and temp file location.
// The zero value is usable: streaming triggers are disabled (everything
// loads in-memory) unless a threshold is set.
type LoadOptions struct {
	// StreamLineThreshold switches to a temp-file-backed source once the
	// job has at least this many processed lines. 0 disables this trigger.
	StreamLineThreshold int
	// StreamByteThreshold switches to a temp-file-backed source once the
	// cumulative processed byte count reaches this many bytes. 0 disables
	// this trigger.
	StreamByteThreshold int64
	// TempDir overrides where the streaming temp file is created.
	TempDir string
}

// DefaultLoadOptions matches what the GUI layer configures by default: jobs
// over 50,000 lines or 4 MiB of processed G-code stream to a temp file
// instead of staying resident.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{StreamLineThreshold: 50_000, StreamByteThreshold: 4 << 20}
}

// LoadFile loads and validates a job file from disk.
func LoadFile(path string, opts LoadOptions) (JobSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Kind: IoError, Detail: err.Error(), Err: err}
	}
	defer f.Close()
	return load(f, opts)
}

// LoadReader loads and validates in-process G-code (e.g. auto-level output)
// through the identical pipeline used for on-disk job files.
func LoadReader(r io.Reader, opts LoadOptions) (JobSource, error) {
	return load(r, opts)
}

func load(r io.Reader, opts LoadOptions) (JobSource, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	state := newSplitState()

	var mem []Line
	var streaming *StreamingFileSource
	var tmp *os.File
	var tmpw *bufio.Writer
	var byteTotal int64
	first := true
	sourceLineNum := 0
	outLineNum := 0

	emit := func(raw []byte, sourceLine int) error {
		outLineNum++
		byteTotal += int64(len(raw))
		if streaming == nil && shouldStream(opts, outLineNum, byteTotal) {
			f, err := newTempSink(opts.TempDir)
			if err != nil {
				return err
			}
			tmp = f
			tmpw = bufferedWriter(tmp)
			streaming = newStreamingFileSource(tmp.Name(), tmp)
			var offset int64
			for _, l := range mem {
				if _, err := tmpw.Write(l.Raw); err != nil {
					return &LoadError{Kind: IoError, Detail: err.Error(), Err: err}
				}
				streaming.appendIndexed(l.Raw, offset, l.SourceLine)
				offset += int64(len(l.Raw))
			}
			mem = nil
			if err := tmpw.Flush(); err != nil {
				return &LoadError{Kind: IoError, Detail: err.Error(), Err: err}
			}
			streaming.pendingOffset = offset
		}
		if streaming != nil {
			if _, err := tmpw.Write(raw); err != nil {
				return &LoadError{Kind: IoError, Detail: err.Error(), Err: err}
			}
			streaming.appendIndexed(raw, streaming.pendingOffset, sourceLine)
			streaming.pendingOffset += int64(len(raw))
			return nil
		}
		line := Line{Raw: append([]byte(nil), raw...), Number: outLineNum, SourceLine: sourceLine}
		mem = append(mem, line)
		return nil
	}

	for scanner.Scan() {
		sourceLineNum++
		text := scanner.Text()
		if first {
			text = string(stripBOM([]byte(text)))
			first = false
		}
		if !isASCII([]byte(text)) {
			return nil, newLoadError(NonAscii, sourceLineNum, "input contains a non-ASCII byte")
		}
		trimmed := strings.TrimSpace(text)
		if strings.HasPrefix(trimmed, "$") {
			return nil, newLoadError(SystemCommandInJob, sourceLineNum, trimmed)
		}
		processed := stripComments(text)
		if strings.TrimSpace(processed) == "" {
			continue
		}
		words := ParseWords(processed)
		compacted := compact(words)
		candidate := compacted + "\n"
		if len(candidate) <= MaxLineBytes {
			state.observe(words)
			if err := emit([]byte(candidate), sourceLineNum); err != nil {
				return nil, err
			}
			continue
		}
		motion, ok := splittable(words, state)
		if !ok {
			return nil, newLoadError(OverlongUnsplittable, sourceLineNum, compacted)
		}
		segments, err := splitLine(motion, words, state)
		if err != nil {
			return nil, newLoadError(OverlongUnsplittable, sourceLineNum, err.Error())
		}
		for _, seg := range segments {
			line := seg + "\n"
			if len(line) > MaxLineBytes {
				return nil, newLoadError(OverlongUnsplittable, sourceLineNum, "split segment still over limit")
			}
			if err := emit([]byte(line), sourceLineNum); err != nil {
				return nil, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &LoadError{Kind: IoError, Detail: err.Error(), Err: err}
	}

	if streaming != nil {
		if err := tmpw.Flush(); err != nil {
			return nil, &LoadError{Kind: IoError, Detail: err.Error(), Err: err}
		}
		return streaming, nil
	}
	return &InMemorySource{lines: mem}, nil
}

func shouldStream(opts LoadOptions, lines int, bytes int64) bool {
	if opts.StreamLineThreshold > 0 && lines >= opts.StreamLineThreshold {
		return true
	}
	if opts.StreamByteThreshold > 0 && bytes >= opts.StreamByteThreshold {
		return true
	}
	return false
}
