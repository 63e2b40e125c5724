// Package stream turns the raw text deltas of a schema-constrained model
// response into a sequence of partial fragment objects. Providers emit the
// JSON document a few bytes at a time; the assembler repairs the truncated
// document after each delta and emits a fragment whenever the repaired form
// parses and differs from the last one emitted.
package stream

import (
	"bytes"
	"encoding/json"

	"github.com/fragmentworks/fragment-gateway/internal/schema"
)

type Assembler struct {
	buf  bytes.Buffer
	last []byte
}

func NewAssembler() *Assembler {
	return &Assembler{}
}

// Push appends a delta and reports the current partial fragment, if the
// buffer repairs into valid JSON and the result changed since the last emit.
func (a *Assembler) Push(delta string) (*schema.Fragment, bool) {
	a.buf.WriteString(delta)

	repaired := complete(a.buf.Bytes())
	if repaired == nil || bytes.Equal(repaired, a.last) {
		return nil, false
	}

	var frag schema.Fragment
	if err := json.Unmarshal(repaired, &frag); err != nil {
		return nil, false
	}

	a.last = repaired
	return &frag, true
}

// Final parses the accumulated document as-is, with no repair. A stream that
// ended cleanly must hold one complete JSON object.
func (a *Assembler) Final() (*schema.Fragment, error) {
	var frag schema.Fragment
	if err := json.Unmarshal(bytes.TrimSpace(a.buf.Bytes()), &frag); err != nil {
		return nil, err
	}
	return &frag, nil
}

// complete appends the closers a truncated JSON document needs to parse:
// an unterminated string gets its quote, open objects and arrays get their
// brackets, a dangling comma is dropped and a dangling colon gets null.
// Returns nil when the input cannot be a JSON object prefix.
func complete(data []byte) []byte {
	var stack []byte
	inString := false
	escaped := false
	hexLeft := 0
	escapeStart := -1

	for i, c := range data {
		if inString {
			switch {
			case hexLeft > 0:
				hexLeft--
				if hexLeft == 0 {
					escapeStart = -1
				}
			case escaped:
				escaped = false
				if c == 'u' {
					hexLeft = 4
				} else {
					escapeStart = -1
				}
			case c == '\\':
				escaped = true
				escapeStart = i
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return nil
			}
			stack = stack[:len(stack)-1]
		}
	}

	out := data
	if inString {
		if escapeStart >= 0 {
			// truncated escape sequence, cut back to the backslash
			out = out[:escapeStart]
		}
		out = append(append([]byte{}, out...), '"')
	} else {
		out = append([]byte{}, out...)
	}

	out = bytes.TrimRight(out, " \t\r\n")
	if len(out) == 0 {
		return nil
	}

	switch out[len(out)-1] {
	case ',':
		out = out[:len(out)-1]
	case ':':
		out = append(out, []byte("null")...)
	}

	for i := len(stack) - 1; i >= 0; i-- {
		out = append(out, stack[i])
	}

	return out
}
