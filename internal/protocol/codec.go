// internal/protocol/codec.go
package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/yosuke-furukawa/json5/encoding/json5"
)

// maxRequestSize bounds a single request, comments excluded
const maxRequestSize = 1 << 20

// Object is a decoded key-value mapping
type Object = map[string]interface{}

// Decoder reads relaxed JSON5 request objects from a stream. Comments of
// both forms are removed while the next object is framed, so Next never
// waits for bytes beyond the closing brace.
type Decoder struct {
	r     *bufio.Reader
	frame bytes.Buffer
}

// NewDecoder creates a decoder reading from r
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next request. io.EOF is returned unwrapped when the
// stream ends between requests, trailing whitespace and comments included.
// A value that does not start an object is reported as a ProtocolError as
// soon as its first character is seen.
func (d *Decoder) Next() (Object, error) {
	c, err := d.skipSpace()
	if err != nil {
		return nil, err
	}
	if c != '{' {
		return nil, &ProtocolError{Reason: fmt.Sprintf("request is %s, not an object", describeLeading(c))}
	}

	d.frame.Reset()
	if err := d.readFrame(c); err != nil {
		return nil, err
	}

	dec := json5.NewDecoder(bytes.NewReader(d.frame.Bytes()))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	n, err := normalize(v)
	if err != nil {
		return nil, err
	}
	request, ok := n.(Object)
	if !ok {
		return nil, fmt.Errorf("request is %s, not an object", describeLeading(c))
	}
	return request, nil
}

// skipSpace returns the first byte that is neither whitespace nor part of
// a comment
func (d *Decoder) skipSpace() (byte, error) {
	for {
		c, err := d.r.ReadByte()
		if err != nil {
			return 0, err
		}
		switch c {
		case ' ', '\t', '\n', '\r', '\v', '\f':
		case '/':
			if err := d.skipComment(); err != nil {
				return 0, err
			}
		default:
			return c, nil
		}
	}
}

// skipComment consumes a comment whose leading '/' has been read. A line
// comment may be ended by the end of the stream, which is returned as io.EOF.
func (d *Decoder) skipComment() error {
	c, err := d.r.ReadByte()
	if err != nil {
		return unexpected(err)
	}
	switch c {
	case '/':
		for {
			c, err := d.r.ReadByte()
			if err != nil {
				return err
			}
			if c == '\n' {
				return nil
			}
		}
	case '*':
		var prev byte
		for {
			c, err := d.r.ReadByte()
			if err != nil {
				return unexpected(err)
			}
			if prev == '*' && c == '/' {
				return nil
			}
			prev = c
		}
	default:
		return fmt.Errorf("invalid character %q after '/'", c)
	}
}

// readFrame copies one bracketed value starting with first into d.frame,
// replacing comments by a space
func (d *Decoder) readFrame(first byte) error {
	depth := 0
	c := first
	for {
		switch c {
		case '/':
			if err := d.skipComment(); err != nil {
				return unexpected(err)
			}
			d.frame.WriteByte(' ')
		case '"', '\'':
			d.frame.WriteByte(c)
			if err := d.readString(c); err != nil {
				return err
			}
		default:
			d.frame.WriteByte(c)
			switch c {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
				if depth == 0 {
					return nil
				}
			}
		}

		if d.frame.Len() > maxRequestSize {
			return fmt.Errorf("request exceeds %d bytes", maxRequestSize)
		}
		var err error
		if c, err = d.r.ReadByte(); err != nil {
			return unexpected(err)
		}
	}
}

// readString copies a string literal up to and including its closing quote
func (d *Decoder) readString(quote byte) error {
	for {
		c, err := d.r.ReadByte()
		if err != nil {
			return unexpected(err)
		}
		d.frame.WriteByte(c)
		switch c {
		case '\\':
			if c, err = d.r.ReadByte(); err != nil {
				return unexpected(err)
			}
			d.frame.WriteByte(c)
		case quote:
			return nil
		}
		if d.frame.Len() > maxRequestSize {
			return fmt.Errorf("request exceeds %d bytes", maxRequestSize)
		}
	}
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// describeLeading names the kind of value that starts with c
func describeLeading(c byte) string {
	switch {
	case c == '[':
		return "an array"
	case c == '"' || c == '\'':
		return "a string"
	case c == 't' || c == 'f':
		return "a boolean"
	case c == 'n':
		return "null"
	case c >= '0' && c <= '9', c == '-', c == '+', c == '.', c == 'I', c == 'N':
		return "a number"
	default:
		return fmt.Sprintf("%q", c)
	}
}

// normalize converts decoded numbers into values that re-encode as
// strict JSON
func normalize(v interface{}) (interface{}, error) {
	switch value := v.(type) {
	case map[string]interface{}:
		for k, item := range value {
			n, err := normalize(item)
			if err != nil {
				return nil, err
			}
			value[k] = n
		}
		return value, nil
	case []interface{}:
		for i, item := range value {
			n, err := normalize(item)
			if err != nil {
				return nil, err
			}
			value[i] = n
		}
		return value, nil
	case json5.Number:
		return normalizeNumber(string(value))
	case float64:
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return nil, fmt.Errorf("number %v has no JSON representation", value)
		}
		return value, nil
	default:
		return v, nil
	}
}

func normalizeNumber(literal string) (interface{}, error) {
	if json.Valid([]byte(literal)) {
		return json.Number(literal), nil
	}
	// hexadecimal and other JSON5-only spellings
	if i, err := strconv.ParseInt(literal, 0, 64); err == nil {
		return json.Number(strconv.FormatInt(i, 10)), nil
	}
	f, err := strconv.ParseFloat(literal, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", literal, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("number %s has no JSON representation", literal)
	}
	return json.Number(strconv.FormatFloat(f, 'g', -1, 64)), nil
}

// Encoder writes strict JSON values, one per line. Each value is handed to
// the underlying writer in a single Write call.
type Encoder struct {
	enc *json.Encoder
}

// NewEncoder creates an encoder writing to w
func NewEncoder(w io.Writer) *Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Encoder{enc: enc}
}

// Encode writes v
func (e *Encoder) Encode(v interface{}) error {
	return e.enc.Encode(v)
}
