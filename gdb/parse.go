package gdb

import (
	"encoding/hex"
	"strconv"
	"strings"
)

// checkSuccess reports whether a response carries a success result.
// "running" counts as success because execution commands acknowledge
// with ^running before the stop event arrives.
func checkSuccess(records []Record) bool {
	for _, r := range records {
		switch r.Message {
		case "done", "connected", "running":
			return true
		case "error":
			return false
		}
	}
	return false
}

// parseInt parses a numeric value from an MI field. GDB decorates
// addresses with symbol annotations ("0x452 <main+22>"); everything after
// the first space is dropped. An empty or unparseable value yields 0.
func parseInt(value string) uint64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if i := strings.IndexAny(value, " \t"); i >= 0 {
		value = value[:i]
	}
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		v, err := strconv.ParseUint(value[2:], 16, 64)
		if err != nil {
			return 0
		}
		return v
	}
	v, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseStop extracts the StopInfo from an execution command response. If
// no *stopped record is present the degenerate StopInfo{StopSignal, 0}
// is returned; callers must not read that as "still running".
func parseStop(records []Record) StopInfo {
	for _, r := range records {
		if r.Message != "stopped" {
			continue
		}
		reason := stopReasonFromMI(r.Results.Str("reason"))
		frame := r.Results.Tuple("frame")

		info := StopInfo{
			Reason:     reason,
			SignalName: r.Results.Str("signal-name"),
		}
		if frame != nil {
			info.Address = parseInt(frame.Str("addr"))
		}
		if bkptno := r.Results.Str("bkptno"); bkptno != "" {
			n, err := strconv.Atoi(bkptno)
			if err == nil {
				info.BreakpointNumber = n
			}
		}
		return info
	}
	return StopInfo{Reason: StopSignal, Address: 0}
}

// parseMemoryBytes extracts the hex contents of a -data-read-memory-bytes
// response. A missing payload decodes to an empty slice, not an error.
func parseMemoryBytes(records []Record) []byte {
	for _, r := range records {
		if r.Message != "done" {
			continue
		}
		memory := r.Results.List("memory")
		if len(memory) == 0 {
			continue
		}
		block, ok := memory[0].(Results)
		if !ok {
			continue
		}
		data, err := hex.DecodeString(block.Str("contents"))
		if err != nil {
			return nil
		}
		return data
	}
	return nil
}

// parseRegisterValues builds a name→value map from a
// -data-list-register-values response. GDB only reports register
// indices here, so entries are named r<index>.
func parseRegisterValues(records []Record) map[string]uint64 {
	result := make(map[string]uint64)
	for _, r := range records {
		if r.Message != "done" {
			continue
		}
		for _, item := range r.Results.List("register-values") {
			reg, ok := item.(Results)
			if !ok {
				continue
			}
			result["r"+reg.Str("number")] = parseInt(reg.Str("value"))
		}
	}
	return result
}

// parseEvalResult extracts the value of -data-evaluate-expression,
// returning nil when the response carries no done record.
func parseEvalResult(records []Record) *EvalResult {
	for _, r := range records {
		if r.Message == "done" {
			return &EvalResult{
				Value: r.Results.Str("value"),
				Type:  r.Results.Str("type"),
			}
		}
	}
	return nil
}

// parseBreakpoint extracts the bkpt payload of -break-insert, or nil
// when the insert failed.
func parseBreakpoint(records []Record) *BreakpointInfo {
	for _, r := range records {
		if r.Message != "done" {
			continue
		}
		bkpt := r.Results.Tuple("bkpt")
		if bkpt == nil {
			continue
		}
		number, _ := strconv.Atoi(bkpt.Str("number"))
		return &BreakpointInfo{
			Number:   number,
			Address:  parseInt(bkpt.Str("addr")),
			Enabled:  bkpt.Str("enabled") == "y",
			Location: bkpt.Str("original-location"),
		}
	}
	return nil
}

// parseBacktrace flattens a -stack-list-frames response. Frames arrive
// either as frame={...} list elements or as bare tuples.
func parseBacktrace(records []Record) []Frame {
	var frames []Frame
	for _, r := range records {
		if r.Message != "done" {
			continue
		}
		for _, item := range r.Results.List("stack") {
			tuple, ok := item.(Results)
			if !ok {
				continue
			}
			if inner := tuple.Tuple("frame"); inner != nil {
				tuple = inner
			}
			level, _ := strconv.Atoi(tuple.Str("level"))
			fn := tuple.Str("func")
			if fn == "" {
				fn = "??"
			}
			line, _ := strconv.Atoi(tuple.Str("line"))
			frames = append(frames, Frame{
				Level: level,
				Addr:  parseInt(tuple.Str("addr")),
				Func:  fn,
				File:  tuple.Str("file"),
				Line:  line,
			})
		}
	}
	return frames
}
