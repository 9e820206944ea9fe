package mailparse

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// Parsed is one mbox entry: either a message or the reason it was skipped.
type Parsed struct {
	Message Message
	Err     error
}

// ReadMbox splits an mbox archive on its "From " separator lines and parses
// each message independently. A malformed message yields a Parsed with a
// ParseError; the rest of the archive is unaffected. mboxrd ">From "
// escaping is undone.
func ReadMbox(r io.Reader) ([]Parsed, error) {
	chunks, err := splitMbox(r)
	if err != nil {
		return nil, err
	}
	out := make([]Parsed, 0, len(chunks))
	for i, chunk := range chunks {
		m, err := ReadMessage(bytes.NewReader(chunk))
		if err != nil {
			out = append(out, Parsed{Err: &ParseError{
				Source: fmt.Sprintf("message %d", i+1),
				Err:    err,
			}})
			continue
		}
		out = append(out, Parsed{Message: m})
	}
	return out, nil
}

// ReadArchive accepts either an mbox archive or a single RFC 5322 message,
// deciding by the "From " separator on the first line. A single message that
// fails to parse still yields one Parsed entry, same as inside an mbox.
func ReadArchive(r io.Reader) ([]Parsed, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(5)
	if err != nil && err != io.EOF {
		return nil, err
	}
	if bytes.HasPrefix(head, []byte("From ")) {
		return ReadMbox(br)
	}
	m, err := ReadMessage(br)
	if err != nil {
		return []Parsed{{Err: &ParseError{Source: "message 1", Err: err}}}, nil
	}
	return []Parsed{{Message: m}}, nil
}

func splitMbox(r io.Reader) ([][]byte, error) {
	br := bufio.NewReader(r)
	var (
		chunks  [][]byte
		current bytes.Buffer
		started bool
	)
	flush := func() {
		if started && current.Len() > 0 {
			chunk := make([]byte, current.Len())
			copy(chunk, current.Bytes())
			chunks = append(chunks, chunk)
		}
		current.Reset()
	}
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			if strings.HasPrefix(line, "From ") {
				flush()
				started = true
				// the separator line itself is not part of the message
			} else if started {
				if strings.HasPrefix(line, ">From ") {
					line = line[1:]
				}
				current.WriteString(line)
			}
		}
		if err == io.EOF {
			flush()
			return chunks, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
