// Package capture parses raw terminal capture files into command/output
// entries. A capture file is a byte stream written by the recording process;
// lines beginning with the prompt boundary marker carry the command text and
// everything up to the next boundary is that command's output.
package capture

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"
)

// BoundaryPrefix is the prompt boundary marker the capture mechanism emits
// at the start of each command line.
const BoundaryPrefix = "$ "

// Entry is one parsed command with its captured output.
type Entry struct {
	Command string
	Output  string
}

// Result is the outcome of one parsing pass.
//
// Consumed is the byte offset up to which the input has been fully turned
// into entries; resuming a later pass from Consumed yields exactly the
// entries a pass from byte 0 would have produced for the remaining suffix.
// Incomplete reports that trailing data (an unterminated command) was left
// unconsumed for a later pass.
type Result struct {
	Entries    []Entry
	Consumed   int64
	Incomplete bool
}

// Parse reads a capture stream from its beginning. When flushTrailing is
// true (the session is closed and the file can no longer grow) a pending
// command at EOF is emitted instead of being held back.
func Parse(r io.Reader, flushTrailing bool) (Result, error) {
	var res Result

	br := bufio.NewReaderSize(r, 64*1024)

	var (
		pos        int64 // bytes read so far
		pendingAt  int64 // offset of the current pending command's boundary line
		command    string
		havePend   bool
		outputs    []string
		incomplete bool
	)

	flush := func() {
		if !havePend {
			return
		}
		res.Entries = append(res.Entries, Entry{
			Command: command,
			Output:  strings.TrimRight(strings.Join(outputs, "\n"), " \t\r\n"),
		})
		havePend = false
		outputs = nil
	}

	for {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return res, err
		}
		atEOF := errors.Is(err, io.EOF)

		if line != "" {
			partial := atEOF && !strings.HasSuffix(line, "\n")
			if partial && !flushTrailing {
				// A line still being written; leave it for the next pass.
				incomplete = true
			} else {
				lineStart := pos
				pos += int64(len(line))
				text := strings.TrimRight(line, "\r\n")

				if strings.HasPrefix(text, BoundaryPrefix) {
					flush()
					pendingAt = lineStart
					command = strings.TrimSpace(text[len(BoundaryPrefix):])
					havePend = command != ""
					if !havePend {
						// Bare prompt; nothing to index, but the bytes are done.
						pendingAt = pos
					}
				} else if havePend {
					outputs = append(outputs, text)
				}
				// Preamble before the first boundary is skipped.
			}
		}

		if atEOF {
			break
		}
	}

	if havePend {
		if flushTrailing {
			flush()
			res.Consumed = pos
		} else {
			// The last command may still be producing output.
			incomplete = true
			res.Consumed = pendingAt
		}
	} else {
		res.Consumed = pos
	}
	res.Incomplete = incomplete
	return res, nil
}

// ParseFile parses path starting at offset, as recorded in the index sync
// state. Consumed in the returned result is absolute within the file.
func ParseFile(path string, offset int64, flushTrailing bool) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return Result{}, err
		}
	}

	res, err := Parse(f, flushTrailing)
	res.Consumed += offset
	return res, err
}
