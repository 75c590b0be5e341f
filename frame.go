package pylink

import (
	"bufio"
	"io"
	"strings"

	"github.com/horgh/irc"
)

// MalformedFrame means a line could not be parsed into a usable message at
// all (bad prefix, no command, unterminated line, and so on). It is never
// fatal — the frame is dropped and the session continues.
type MalformedFrame struct {
	Line string
	err  error
}

func (e *MalformedFrame) Error() string {
	return "malformed frame: " + e.Line + ": " + e.err.Error()
}

// Frame is one parsed wire message: a source (SID, UID, or empty if
// implicit), a canonicalized (upper-case) command, and its arguments with
// the trailing arg's leading ':' already stripped.
type Frame struct {
	// Source is the SID or UID in the line's prefix. Empty if the line had
	// no prefix, in which case the source is implicitly the peer we're
	// talking to.
	Source string

	// Command is upper-cased.
	Command string

	// Args are the message parameters, in order. A trailing ":"-prefixed
	// argument has had its colon stripped and spaces preserved.
	Args []string
}

// Framer reads CRLF-delimited lines from a byte stream and yields parsed
// Frames. It is a thin layer over github.com/horgh/irc's line decoder,
// reporting lines the decoder rejects as *MalformedFrame so the caller can
// drop them. The source is passed through as given; it is not classified
// as a SID or a UID.
type Framer struct {
	r *bufio.Reader
}

// NewFramer wraps r for frame-at-a-time reading.
func NewFramer(r io.Reader) *Framer {
	return &Framer{r: bufio.NewReaderSize(r, irc.MaxLineLength*2)}
}

// ReadFrame reads and parses the next line. It returns io.EOF when the
// stream is exhausted. A *MalformedFrame is returned (never wrapped) when
// the line could not be parsed as an IRC message at all — callers should
// log and continue, never treat it as session-fatal. A zero-argument
// command (e.g. ENDBURST) is not malformed; the protocol allows commands
// with no parameters.
func (f *Framer) ReadFrame() (*Frame, error) {
	line, err := f.r.ReadString('\n')
	if err != nil {
		if line == "" {
			return nil, err
		}
		// Fall through: we have a line without a trailing newline (e.g. EOF
		// mid-line). Let ParseMessage's line-ending fixup reject it below if
		// it's unusable, otherwise let it through as the stream's last frame.
	}

	msg, perr := irc.ParseMessage(line)
	if perr != nil && perr != irc.ErrTruncated {
		return nil, &MalformedFrame{Line: strings.TrimRight(line, "\r\n"), err: perr}
	}

	return &Frame{
		Source:  msg.Prefix,
		Command: msg.Command,
		Args:    msg.Params,
	}, nil
}

// EncodeLine renders a source, command and arguments back into a
// CRLF-terminated wire line via github.com/horgh/irc's Message.Encode,
// which applies the trailing-arg colon rule and enforces MaxLineLength.
// A truncated encoding (ErrTruncated) is still usable and is returned
// without error; any other encode failure comes back as an error so the
// caller can decide whether to log and drop it.
func EncodeLine(source, command string, args []string) (string, error) {
	m := irc.Message{Prefix: source, Command: command, Params: args}
	line, err := m.Encode()
	if err != nil && err != irc.ErrTruncated {
		return "", err
	}
	return line, nil
}
