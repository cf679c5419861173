package stomp

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

const (
	CmdConnect     = "CONNECT"
	CmdConnected   = "CONNECTED"
	CmdSend        = "SEND"
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"
	CmdDisconnect  = "DISCONNECT"
	CmdMessage     = "MESSAGE"
	CmdReceipt     = "RECEIPT"
	CmdError       = "ERROR"
)

// Header is an ordered header list; STOMP 1.2 lets the first occurrence of a
// repeated header win.
type Header [][2]string

func (h Header) Get(key string) string {
	for _, kv := range h {
		if kv[0] == key {
			return kv[1]
		}
	}
	return ""
}

func (h *Header) Add(key, value string) {
	*h = append(*h, [2]string{key, value})
}

// Frame is one STOMP 1.2 frame. Each WebSocket message carries at most one.
type Frame struct {
	Command string
	Header  Header
	Body    []byte
}

// escaping does not apply to CONNECT and CONNECTED frames.
func escapes(cmd string) bool {
	return cmd != CmdConnect && cmd != CmdConnected
}

var (
	headerEscaper   = strings.NewReplacer("\\", "\\\\", "\r", "\\r", "\n", "\\n", ":", "\\c")
	headerUnescaper = strings.NewReplacer("\\\\", "\\", "\\r", "\r", "\\n", "\n", "\\c", ":")
)

// Marshal encodes f, adding content-length when a body is present.
func (f Frame) Marshal() []byte {
	var buf bytes.Buffer
	buf.WriteString(f.Command)
	buf.WriteByte('\n')
	esc := escapes(f.Command)
	for _, kv := range f.Header {
		k, v := kv[0], kv[1]
		if esc {
			k, v = headerEscaper.Replace(k), headerEscaper.Replace(v)
		}
		buf.WriteString(k)
		buf.WriteByte(':')
		buf.WriteString(v)
		buf.WriteByte('\n')
	}
	if len(f.Body) > 0 && f.Header.Get("content-length") == "" {
		buf.WriteString("content-length:")
		buf.WriteString(strconv.Itoa(len(f.Body)))
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	buf.Write(f.Body)
	buf.WriteByte(0)
	return buf.Bytes()
}

// Parse decodes a single frame. It returns ok=false for a heart-beat
// (a payload made only of end-of-line bytes).
func Parse(data []byte) (Frame, bool, error) {
	trimmed := bytes.TrimLeft(data, "\r\n")
	if len(trimmed) == 0 {
		return Frame{}, false, nil
	}
	headEnd := bytes.Index(trimmed, []byte("\n\n"))
	sepLen := 2
	if crlf := bytes.Index(trimmed, []byte("\r\n\r\n")); crlf >= 0 && (headEnd < 0 || crlf < headEnd) {
		headEnd, sepLen = crlf, 4
	}
	if headEnd < 0 {
		return Frame{}, false, fmt.Errorf("stomp: frame has no header terminator")
	}
	lines := strings.Split(strings.ReplaceAll(string(trimmed[:headEnd]), "\r\n", "\n"), "\n")
	f := Frame{Command: lines[0]}
	if f.Command == "" {
		return Frame{}, false, fmt.Errorf("stomp: empty command")
	}
	esc := escapes(f.Command)
	for _, line := range lines[1:] {
		k, v, found := strings.Cut(line, ":")
		if !found {
			return Frame{}, false, fmt.Errorf("stomp: malformed header %q", line)
		}
		if esc {
			k, v = headerUnescaper.Replace(k), headerUnescaper.Replace(v)
		}
		f.Header.Add(k, v)
	}
	body := trimmed[headEnd+sepLen:]
	if cl := f.Header.Get("content-length"); cl != "" {
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 || n > len(body) {
			return Frame{}, false, fmt.Errorf("stomp: bad content-length %q", cl)
		}
		body = body[:n]
	} else if i := bytes.IndexByte(body, 0); i >= 0 {
		body = body[:i]
	}
	f.Body = append([]byte(nil), body...)
	return f, true, nil
}
