package arch

import (
	"encoding/binary"
	"fmt"
	"testing"
)

// fakeSession serves canned memory words, registers, and expression
// answers so the decoders can run without a live target.
type fakeSession struct {
	words   map[uint64]uint32
	raw     map[uint64][]byte
	regs    map[string]uint64
	exprs   map[string]string
	onWrite func(address uint64, data []byte)
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		words: map[uint64]uint32{},
		raw:   map[uint64][]byte{},
		regs:  map[string]uint64{},
		exprs: map[string]string{},
	}
}

func (f *fakeSession) ReadMemory(address uint64, length int) ([]byte, error) {
	if b, ok := f.raw[address]; ok {
		if length > len(b) {
			length = len(b)
		}
		return b[:length], nil
	}
	if w, ok := f.words[address]; ok {
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, w)
		if length < 4 {
			return buf[:length], nil
		}
		return buf, nil
	}
	return nil, fmt.Errorf("cannot access memory at 0x%x", address)
}

func (f *fakeSession) WriteMemory(address uint64, data []byte) (bool, error) {
	if f.onWrite != nil {
		f.onWrite(address, data)
	}
	return true, nil
}

func (f *fakeSession) ReadRegisters(names []string) (map[string]uint64, error) {
	if names == nil {
		return f.regs, nil
	}
	out := make(map[string]uint64, len(names))
	for _, n := range names {
		out[n] = f.regs[n]
	}
	return out, nil
}

func (f *fakeSession) ReadRegister(name string) (uint64, error) {
	return f.regs[name], nil
}

func (f *fakeSession) Evaluate(expression string) (string, error) {
	if v, ok := f.exprs[expression]; ok {
		return v, nil
	}
	return "", fmt.Errorf("no symbol %q in current context", expression)
}

func TestGetCaseInsensitive(t *testing.T) {
	lower, err := Get("cortex-m33")
	if err != nil {
		t.Fatal(err)
	}
	upper, err := Get("CORTEX-M33")
	if err != nil {
		t.Fatal(err)
	}
	if lower.Name() != upper.Name() {
		t.Errorf("case mismatch: %q vs %q", lower.Name(), upper.Name())
	}
}

func TestGetUnknown(t *testing.T) {
	if _, err := Get("z80"); err == nil {
		t.Error("expected error for unsupported architecture")
	}
}

func TestDetect(t *testing.T) {
	cases := []struct {
		cpu, machine, want string
	}{
		{"cortex-m3", "lm3s6965evb", "cortex-m3"},
		{"cortex-m0+", "microbit", "cortex-m0+"},
		{"cortex-m33", "mps2-an505", "cortex-m33"},
		{"cortex-a9", "vexpress", "cortex-m"},
		{"rv32", "virt", "riscv32"},
		{"rv64", "virt", "riscv64"},
		{"any", "sifive_u", "riscv64"},
		{"any", "sifive_e", "riscv32"},
		{"riscv-generic", "virt", "riscv"},
		{"unknown", "unknown", "cortex-m"},
	}
	for _, c := range cases {
		if got := Detect(c.cpu, c.machine); got != c.want {
			t.Errorf("Detect(%q, %q) = %q, want %q", c.cpu, c.machine, got, c.want)
		}
	}
}

func TestDetectResolvable(t *testing.T) {
	// Whatever Detect answers must resolve through Get.
	for _, c := range [][2]string{{"cortex-m4", "netduinoplus2"}, {"rv64", "virt"}, {"", ""}} {
		name := Detect(c[0], c[1])
		if _, err := Get(name); err != nil {
			t.Errorf("Detect(%q, %q) = %q which Get rejects: %v", c[0], c[1], name, err)
		}
	}
}

func TestLeWordShortReads(t *testing.T) {
	if got := leWord([]byte{0x78, 0x56, 0x34, 0x12}); got != 0x12345678 {
		t.Errorf("full word = %#x", got)
	}
	if got := leWord([]byte{0xAB}); got != 0xAB {
		t.Errorf("short word = %#x", got)
	}
	if got := leWord(nil); got != 0 {
		t.Errorf("empty word = %#x", got)
	}
}

func TestAnalyzeCrashComposite(t *testing.T) {
	s := newFakeSession()
	s.words[cfsrAddr] = 0x02 // DACCVIOL, no valid address
	s.words[hfsrAddr] = 0
	s.words[mmfarAddr] = 0
	s.words[bfarAddr] = 0
	s.words[shpr1Addr] = 0
	s.words[shpr2Addr] = 0
	s.words[shpr3Addr] = 0
	s.words[nvicISERBase] = 0
	s.words[nvicISPRBase] = 0
	s.regs["sp"] = 0x20001000
	s.raw[0x20001000] = make([]byte, 32)

	tgt, err := Get("cortex-m3")
	if err != nil {
		t.Fatal(err)
	}
	report, err := tgt.AnalyzeCrash(s)
	if err != nil {
		t.Fatal(err)
	}
	if report["architecture"] != "cortex-m3" {
		t.Errorf("architecture = %v", report["architecture"])
	}
	for _, key := range []string{"fault", "exception_frame", "interrupts"} {
		if _, ok := report[key]; !ok {
			t.Errorf("missing %q in crash report", key)
		}
	}
	fault, ok := report["fault"].(map[string]any)
	if !ok {
		t.Fatal("fault is not a map")
	}
	if fault["fault_type"] != "memory_protection_fault" {
		t.Errorf("fault_type = %v", fault["fault_type"])
	}
	if fault["is_valid"] != false {
		t.Errorf("is_valid = %v, want false without MMARVALID", fault["is_valid"])
	}
}

func TestToMapHexFormatting(t *testing.T) {
	f := &FaultState{
		FaultType:    "bus_fault",
		FaultAddress: 0xE000ED28,
		IsValid:      true,
		RawRegisters: map[string]uint64{"BFAR": 0xE000ED28, "CFSR": 0x200},
	}
	m := f.ToMap()
	if m["fault_address"] != "0xe000ed28" {
		t.Errorf("fault_address = %v, want lowercase 8-digit hex", m["fault_address"])
	}
	raw, ok := m["raw_registers"].(map[string]string)
	if !ok {
		t.Fatal("raw_registers is not a string map")
	}
	if raw["BFAR"] != "0xe000ed28" || raw["CFSR"] != "0x00000200" {
		t.Errorf("raw registers = %v", raw)
	}

	e := &ExceptionFrame{
		Registers:     map[string]uint64{"pc": 0x8001234},
		ReturnAddress: 0x8001234,
		StackPointer:  0x20001000,
		FrameType:     "basic",
	}
	em := e.ToMap()
	if em["return_address"] != "0x08001234" {
		t.Errorf("return_address = %v, want zero-padded hex", em["return_address"])
	}
}
