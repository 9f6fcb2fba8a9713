package gdb

import (
	"fmt"
	"strings"
)

// The GDB Machine Interface is line oriented. Every line is one output
// record: a result record ("^done,..."), an async record ("*stopped,...",
// "=thread-created,...", "+download,..."), or a stream record carrying a
// quoted string ("~\"text\""). A response to one command is a sequence of
// records terminated by a lone "(gdb)" prompt line.

type RecordClass int

const (
	ClassResult RecordClass = iota
	ClassExecAsync
	ClassStatusAsync
	ClassNotifyAsync
	ClassConsoleStream
	ClassTargetStream
	ClassLogStream
)

// Record is one parsed MI output record.
type Record struct {
	Token   string
	Class   RecordClass
	Message string  // result/async class string: "done", "stopped", "error", ...
	Results Results // fields following the message, nil for stream records
	Stream  string  // text payload for stream records
}

// Results is the field tree of a record. Values are one of string,
// Results, or []any (list elements again being one of the three).
type Results map[string]any

// Str returns the string value for key, or "" when absent or not a string.
func (r Results) Str(key string) string {
	s, _ := r[key].(string)
	return s
}

// Tuple returns the nested tuple for key, or nil.
func (r Results) Tuple(key string) Results {
	t, _ := r[key].(Results)
	return t
}

// List returns the list value for key, or nil.
func (r Results) List(key string) []any {
	l, _ := r[key].([]any)
	return l
}

// isPrompt reports whether line is the "(gdb)" response terminator.
func isPrompt(line string) bool {
	return strings.TrimSpace(line) == "(gdb)"
}

// parseRecord parses one MI output line. It returns ok=false for blank
// lines and the "(gdb)" prompt, and an error for lines that look like
// records but do not scan.
func parseRecord(line string) (Record, bool, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" || isPrompt(line) {
		return Record{}, false, nil
	}

	sc := &miScanner{s: line}
	token := sc.takeDigits()

	var rec Record
	rec.Token = token

	switch {
	case sc.accept('^'):
		rec.Class = ClassResult
	case sc.accept('*'):
		rec.Class = ClassExecAsync
	case sc.accept('+'):
		rec.Class = ClassStatusAsync
	case sc.accept('='):
		rec.Class = ClassNotifyAsync
	case sc.accept('~'), sc.accept('@'), sc.accept('&'):
		switch line[sc.pos-1] {
		case '~':
			rec.Class = ClassConsoleStream
		case '@':
			rec.Class = ClassTargetStream
		default:
			rec.Class = ClassLogStream
		}
		text, err := sc.parseCString()
		if err != nil {
			return Record{}, false, err
		}
		rec.Stream = text
		return rec, true, nil
	default:
		// Not an MI record; GDB sometimes echoes target output verbatim.
		rec.Class = ClassTargetStream
		rec.Stream = line
		return rec, true, nil
	}

	rec.Message = sc.takeWhile(func(c byte) bool { return c != ',' })
	rec.Results = Results{}
	for sc.accept(',') {
		name, value, err := sc.parseResult()
		if err != nil {
			return Record{}, false, fmt.Errorf("malformed record %q: %v", line, err)
		}
		rec.Results[name] = value
	}
	return rec, true, nil
}

type miScanner struct {
	s   string
	pos int
}

func (sc *miScanner) eof() bool { return sc.pos >= len(sc.s) }

func (sc *miScanner) peek() byte {
	if sc.eof() {
		return 0
	}
	return sc.s[sc.pos]
}

func (sc *miScanner) accept(c byte) bool {
	if !sc.eof() && sc.s[sc.pos] == c {
		sc.pos++
		return true
	}
	return false
}

func (sc *miScanner) takeDigits() string {
	start := sc.pos
	for !sc.eof() && sc.s[sc.pos] >= '0' && sc.s[sc.pos] <= '9' {
		sc.pos++
	}
	return sc.s[start:sc.pos]
}

func (sc *miScanner) takeWhile(pred func(byte) bool) string {
	start := sc.pos
	for !sc.eof() && pred(sc.s[sc.pos]) {
		sc.pos++
	}
	return sc.s[start:sc.pos]
}

// parseResult scans one name=value field.
func (sc *miScanner) parseResult() (string, any, error) {
	name := sc.takeWhile(func(c byte) bool { return c != '=' && c != ',' && c != ']' && c != '}' })
	if !sc.accept('=') {
		return "", nil, fmt.Errorf("expected '=' after %q at %d", name, sc.pos)
	}
	value, err := sc.parseValue()
	if err != nil {
		return "", nil, err
	}
	return name, value, nil
}

// parseValue scans a c-string, tuple, or list.
func (sc *miScanner) parseValue() (any, error) {
	switch sc.peek() {
	case '"':
		return sc.parseCString()
	case '{':
		return sc.parseTuple()
	case '[':
		return sc.parseList()
	}
	return nil, fmt.Errorf("unexpected value start %q at %d", string(sc.peek()), sc.pos)
}

func (sc *miScanner) parseCString() (string, error) {
	if !sc.accept('"') {
		return "", fmt.Errorf("expected '\"' at %d", sc.pos)
	}
	var b strings.Builder
	for !sc.eof() {
		c := sc.s[sc.pos]
		sc.pos++
		switch c {
		case '"':
			return b.String(), nil
		case '\\':
			if sc.eof() {
				return "", fmt.Errorf("dangling escape at %d", sc.pos)
			}
			e := sc.s[sc.pos]
			sc.pos++
			switch e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '\\', '"':
				b.WriteByte(e)
			default:
				b.WriteByte('\\')
				b.WriteByte(e)
			}
		default:
			b.WriteByte(c)
		}
	}
	return "", fmt.Errorf("unterminated string")
}

func (sc *miScanner) parseTuple() (Results, error) {
	if !sc.accept('{') {
		return nil, fmt.Errorf("expected '{' at %d", sc.pos)
	}
	tuple := Results{}
	if sc.accept('}') {
		return tuple, nil
	}
	for {
		name, value, err := sc.parseResult()
		if err != nil {
			return nil, err
		}
		tuple[name] = value
		if sc.accept('}') {
			return tuple, nil
		}
		if !sc.accept(',') {
			return nil, fmt.Errorf("expected ',' or '}' at %d", sc.pos)
		}
	}
}

// parseList scans "[...]". Elements are either bare values or name=value
// pairs; pairs are kept as single-entry tuples so the name survives
// (backtraces arrive as stack=[frame={...},frame={...}]).
func (sc *miScanner) parseList() ([]any, error) {
	if !sc.accept('[') {
		return nil, fmt.Errorf("expected '[' at %d", sc.pos)
	}
	list := []any{}
	if sc.accept(']') {
		return list, nil
	}
	for {
		switch sc.peek() {
		case '"', '{', '[':
			value, err := sc.parseValue()
			if err != nil {
				return nil, err
			}
			list = append(list, value)
		default:
			name, value, err := sc.parseResult()
			if err != nil {
				return nil, err
			}
			list = append(list, Results{name: value})
		}
		if sc.accept(']') {
			return list, nil
		}
		if !sc.accept(',') {
			return nil, fmt.Errorf("expected ',' or ']' at %d", sc.pos)
		}
	}
}
