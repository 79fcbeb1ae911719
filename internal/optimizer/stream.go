package optimizer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// streamWriter appends completed trials to a JSONL file, one record per
// line, flushed after every record so a crashed or timed-out run loses at
// most the trial being written. It is owned by a single goroutine; callers
// must not share it.
type streamWriter struct {
	f *os.File
	w *bufio.Writer
}

func newStreamWriter(path string) (*streamWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create stream directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream file: %w", err)
	}
	return &streamWriter{f: f, w: bufio.NewWriter(f)}, nil
}

// Append writes one trial record and flushes it to the file.
func (s *streamWriter) Append(t Trial) error {
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode trial: %w", err)
	}
	if _, err := s.w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("failed to write trial: %w", err)
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush trial: %w", err)
	}
	return nil
}

func (s *streamWriter) Close() error {
	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}

// readStream parses a JSONL trial stream. Records are independent; a
// truncated final line is skipped rather than failing the whole load, so
// streams from interrupted runs stay readable.
func readStream(path string) ([]Trial, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream file: %w", err)
	}
	defer f.Close()

	var trials []Trial
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var t Trial
		if err := json.Unmarshal(line, &t); err != nil {
			continue
		}
		trials = append(trials, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stream file: %w", err)
	}
	return trials, nil
}
