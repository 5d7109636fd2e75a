package respserver

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Protocol limits. A frame beyond any of them closes the connection.
const (
	// MaxArrayLen limits the number of elements in a request.
	// The widest command, MAP.CAS, has five.
	MaxArrayLen = 64

	// MaxBulkLen limits one argument (1 MiB). Values and queue items are
	// small in practice.
	MaxBulkLen = 1 << 20

	// MaxInlineLen limits an inline command line.
	MaxInlineLen = 4 * 1024
)

var (
	ErrProtocol      = errors.New("resp: protocol error")
	ErrLimitExceeded = errors.New("resp: limit exceeded")
)

var crlf = []byte("\r\n")

// ReadCommand reads one request. A nil slice with a nil error is an empty
// request.
func ReadCommand(r *bufio.Reader) ([][]byte, error) {
	b, err := r.Peek(1)
	if err != nil {
		return nil, err
	}
	if b[0] == '*' {
		return readArray(r)
	}

	line, err := readLine(r, MaxInlineLen)
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}
	if len(fields) > MaxArrayLen {
		return nil, fmt.Errorf("%w: %d inline arguments", ErrLimitExceeded, len(fields))
	}
	args := make([][]byte, len(fields))
	for i, f := range fields {
		args[i] = []byte(f)
	}
	return args, nil
}

func readArray(r *bufio.Reader) ([][]byte, error) {
	n, err := readHeader(r, '*')
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	if n > MaxArrayLen {
		return nil, fmt.Errorf("%w: array length %d exceeds %d", ErrLimitExceeded, n, MaxArrayLen)
	}

	args := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		arg, err := readBulk(r)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	return args, nil
}

func readBulk(r *bufio.Reader) ([]byte, error) {
	n, err := readHeader(r, '$')
	if err != nil {
		return nil, err
	}
	if n < 0 {
		// Null bulk as an argument reads as empty.
		return []byte{}, nil
	}
	if n > MaxBulkLen {
		return nil, fmt.Errorf("%w: bulk length %d exceeds %d", ErrLimitExceeded, n, MaxBulkLen)
	}

	buf := make([]byte, n+2)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	if !bytes.HasSuffix(buf, crlf) {
		return nil, fmt.Errorf("%w: bulk not terminated by CRLF", ErrProtocol)
	}
	return buf[:n], nil
}

// readHeader reads a "<prefix><int>\r\n" line.
func readHeader(r *bufio.Reader, prefix byte) (int, error) {
	line, err := readLine(r, 32)
	if err != nil {
		return 0, err
	}
	if len(line) < 2 || line[0] != prefix {
		return 0, fmt.Errorf("%w: expected '%c'", ErrProtocol, prefix)
	}
	n, err := strconv.Atoi(line[1:])
	if err != nil || n < -1 {
		return 0, fmt.Errorf("%w: invalid length %q", ErrProtocol, line[1:])
	}
	return n, nil
}

func readLine(r *bufio.Reader, maxLen int) (string, error) {
	var buf []byte
	for {
		frag, err := r.ReadSlice('\n')
		buf = append(buf, frag...)
		if len(buf) > maxLen {
			return "", fmt.Errorf("%w: line exceeds %d bytes", ErrLimitExceeded, maxLen)
		}
		if err == nil {
			break
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return "", err
		}
	}
	if !bytes.HasSuffix(buf, crlf) {
		return "", fmt.Errorf("%w: missing CRLF", ErrProtocol)
	}
	return string(buf[:len(buf)-2]), nil
}

// replyWriter encodes RESP replies. Write errors are sticky and surface on
// Flush.
type replyWriter struct {
	w   *bufio.Writer
	err error
}

func (rw *replyWriter) write(parts ...string) {
	for _, p := range parts {
		if rw.err != nil {
			return
		}
		_, rw.err = rw.w.WriteString(p)
	}
}

// lineEscaper keeps client-supplied text from ending a one-line reply early.
var lineEscaper = strings.NewReplacer("\r", " ", "\n", " ")

func (rw *replyWriter) Simple(s string) {
	rw.write("+", lineEscaper.Replace(s), "\r\n")
}

func (rw *replyWriter) OK() {
	rw.Simple("OK")
}

func (rw *replyWriter) Error(s string) {
	rw.write("-", lineEscaper.Replace(s), "\r\n")
}

func (rw *replyWriter) Int(n int64) {
	rw.write(":", strconv.FormatInt(n, 10), "\r\n")
}

func (rw *replyWriter) Bool(b bool) {
	if b {
		rw.Int(1)
		return
	}
	rw.Int(0)
}

func (rw *replyWriter) Null() {
	rw.write("$-1\r\n")
}

func (rw *replyWriter) Bulk(b []byte) {
	rw.write("$", strconv.Itoa(len(b)), "\r\n")
	if rw.err == nil {
		_, rw.err = rw.w.Write(b)
	}
	rw.write("\r\n")
}

func (rw *replyWriter) Flush() error {
	if rw.err != nil {
		return rw.err
	}
	return rw.w.Flush()
}

func commandName(b []byte) string {
	if bytes.ContainsAny(b, "abcdefghijklmnopqrstuvwxyz") {
		return strings.ToUpper(string(b))
	}
	return string(b)
}
