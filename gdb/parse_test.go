package gdb

import (
	"bytes"
	"testing"
)

func mustRecords(t *testing.T, lines ...string) []Record {
	t.Helper()
	var records []Record
	for _, line := range lines {
		rec, ok, err := parseRecord(line)
		if err != nil {
			t.Fatalf("parseRecord(%q): %v", line, err)
		}
		if ok {
			records = append(records, rec)
		}
	}
	return records
}

func TestParseInt(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
	}{
		{"0x08000452", 0x08000452},
		{"0X1000", 0x1000},
		{"1234", 1234},
		{"0x452 <main+22>", 0x452},
		{"  0xe000ed28 ", 0xe000ed28},
		{"", 0},
		{"garbage", 0},
		{"0xzz", 0},
	}
	for _, c := range cases {
		if got := parseInt(c.in); got != c.want {
			t.Errorf("parseInt(%q) = %#x, want %#x", c.in, got, c.want)
		}
	}
}

func TestCheckSuccess(t *testing.T) {
	if !checkSuccess(mustRecords(t, `^done`)) {
		t.Error("^done should succeed")
	}
	if !checkSuccess(mustRecords(t, `^connected`)) {
		t.Error("^connected should succeed")
	}
	if !checkSuccess(mustRecords(t, `^running`)) {
		t.Error("^running should succeed")
	}
	if checkSuccess(mustRecords(t, `^error,msg="No such file"`)) {
		t.Error("^error should fail")
	}
	if checkSuccess(nil) {
		t.Error("empty response should fail")
	}
}

func TestParseStopBreakpoint(t *testing.T) {
	records := mustRecords(t,
		`^running`,
		`*running,thread-id="all"`,
		`*stopped,reason="breakpoint-hit",disp="keep",bkptno="2",frame={addr="0x08000452",func="main"}`,
	)
	stop := parseStop(records)
	if stop.Reason != StopBreakpoint {
		t.Errorf("reason = %q, want %q", stop.Reason, StopBreakpoint)
	}
	if stop.Address != 0x08000452 {
		t.Errorf("address = %#x, want 0x08000452", stop.Address)
	}
	if stop.BreakpointNumber != 2 {
		t.Errorf("bkptno = %d, want 2", stop.BreakpointNumber)
	}
}

func TestParseStopSignal(t *testing.T) {
	records := mustRecords(t,
		`*stopped,reason="signal-received",signal-name="SIGINT",frame={addr="0x0800100a",func="busy_loop"}`,
	)
	stop := parseStop(records)
	if stop.Reason != StopSignal {
		t.Errorf("reason = %q, want %q", stop.Reason, StopSignal)
	}
	if stop.SignalName != "SIGINT" {
		t.Errorf("signal = %q, want SIGINT", stop.SignalName)
	}
}

func TestParseStopUnknownReason(t *testing.T) {
	records := mustRecords(t,
		`*stopped,reason="solib-event",frame={addr="0x1000"}`,
	)
	stop := parseStop(records)
	if stop.Reason != StopSignal {
		t.Errorf("unknown reason mapped to %q, want %q", stop.Reason, StopSignal)
	}
	if stop.Address != 0x1000 {
		t.Errorf("address = %#x", stop.Address)
	}
}

func TestParseStopMissing(t *testing.T) {
	stop := parseStop(mustRecords(t, `^done`))
	if stop.Reason != StopSignal || stop.Address != 0 {
		t.Errorf("degenerate stop = %+v", stop)
	}
}

func TestParseMemoryBytes(t *testing.T) {
	records := mustRecords(t,
		`^done,memory=[{begin="0x20000000",offset="0x0",end="0x20000004",contents="deadbeef"}]`,
	)
	data := parseMemoryBytes(records)
	if !bytes.Equal(data, []byte{0xde, 0xad, 0xbe, 0xef}) {
		t.Errorf("data = %x", data)
	}

	if data := parseMemoryBytes(mustRecords(t, `^error,msg="Cannot access memory"`)); data != nil {
		t.Errorf("error response yielded %x", data)
	}
}

func TestParseRegisterValues(t *testing.T) {
	records := mustRecords(t,
		`^done,register-values=[{number="0",value="0x1"},{number="15",value="0x08000452"}]`,
	)
	regs := parseRegisterValues(records)
	if regs["r0"] != 1 {
		t.Errorf("r0 = %#x", regs["r0"])
	}
	if regs["r15"] != 0x08000452 {
		t.Errorf("r15 = %#x", regs["r15"])
	}
}

func TestParseEvalResult(t *testing.T) {
	result := parseEvalResult(mustRecords(t, `^done,value="0xe000ed28"`))
	if result == nil || result.Value != "0xe000ed28" {
		t.Errorf("result = %+v", result)
	}
	typed := parseEvalResult(mustRecords(t, `^done,value="4",type="int"`))
	if typed == nil || typed.Value != "4" || typed.Type != "int" {
		t.Errorf("typed result = %+v", typed)
	}
	if parseEvalResult(mustRecords(t, `^error,msg="No symbol"`)) != nil {
		t.Error("error response should yield nil")
	}
}

func TestParseBreakpoint(t *testing.T) {
	records := mustRecords(t,
		`^done,bkpt={number="3",type="breakpoint",disp="keep",enabled="y",addr="0x08000452",original-location="main"}`,
	)
	bp := parseBreakpoint(records)
	if bp == nil {
		t.Fatal("nil breakpoint")
	}
	if bp.Number != 3 || bp.Address != 0x08000452 || !bp.Enabled || bp.Location != "main" {
		t.Errorf("bp = %+v", bp)
	}
	if parseBreakpoint(mustRecords(t, `^error,msg="Function not defined"`)) != nil {
		t.Error("error response should yield nil")
	}
}

func TestParseBacktrace(t *testing.T) {
	records := mustRecords(t,
		`^done,stack=[frame={level="0",addr="0x0800100a",func="HardFault_Handler",file="faults.c",line="12"},frame={level="1",addr="0x08000452"}]`,
	)
	frames := parseBacktrace(records)
	if len(frames) != 2 {
		t.Fatalf("len = %d, want 2", len(frames))
	}
	if frames[0].Func != "HardFault_Handler" || frames[0].File != "faults.c" || frames[0].Line != 12 {
		t.Errorf("frame 0 = %+v", frames[0])
	}
	if frames[1].Func != "??" {
		t.Errorf("frame 1 func = %q, want ??", frames[1].Func)
	}
	if frames[1].Level != 1 {
		t.Errorf("frame 1 level = %d", frames[1].Level)
	}
}

func TestStopReasonFromMI(t *testing.T) {
	cases := map[string]StopReason{
		"breakpoint-hit":     StopBreakpoint,
		"watchpoint-trigger": StopWatchpoint,
		"end-stepping-range": StopStep,
		"exited-normally":    StopExitedNormally,
		"signal-received":    StopSignal,
		"something-new":      StopSignal,
		"":                   StopSignal,
	}
	for in, want := range cases {
		if got := stopReasonFromMI(in); got != want {
			t.Errorf("stopReasonFromMI(%q) = %q, want %q", in, got, want)
		}
	}
}
