package arch

import (
	"testing"
)

func TestDecodeMcause(t *testing.T) {
	info := decodeMcause(2, 4)
	if info.Type != "exception" || info.Code != 2 {
		t.Errorf("mcause 2 = %+v", info)
	}
	if info.Name != "Illegal instruction" {
		t.Errorf("name = %q", info.Name)
	}

	info = decodeMcause(0x80000007, 4)
	if info.Type != "interrupt" || info.Code != 7 {
		t.Errorf("mcause 0x80000007 (rv32) = %+v", info)
	}
	if info.Name != "Machine timer interrupt" {
		t.Errorf("name = %q", info.Name)
	}

	// On RV64 the interrupt flag sits in bit 63; bit 31 is just data.
	info = decodeMcause(0x80000007, 8)
	if info.Type != "exception" {
		t.Errorf("rv64 mcause 0x80000007 type = %q, want exception", info.Type)
	}
	info = decodeMcause(1<<63|7, 8)
	if info.Type != "interrupt" || info.Code != 7 {
		t.Errorf("rv64 timer interrupt = %+v", info)
	}

	info = decodeMcause(14, 4)
	if info.Name != "Unknown exception (14)" {
		t.Errorf("unknown code name = %q", info.Name)
	}
}

func TestRiscvFaultType(t *testing.T) {
	if got := riscvFaultType(decodeMcause(5, 4)); got != "load_access_fault" {
		t.Errorf("code 5 = %q", got)
	}
	if got := riscvFaultType(decodeMcause(1<<31|3, 4)); got != "interrupt" {
		t.Errorf("interrupt = %q", got)
	}
	if got := riscvFaultType(decodeMcause(14, 4)); got != "unknown_trap" {
		t.Errorf("unknown code = %q", got)
	}
}

func TestMtvalIsAddress(t *testing.T) {
	for _, code := range []uint64{1, 5, 7, 12, 13, 15} {
		if !mtvalIsAddress(code) {
			t.Errorf("code %d should carry an address", code)
		}
	}
	for _, code := range []uint64{0, 2, 3, 8, 11} {
		if mtvalIsAddress(code) {
			t.Errorf("code %d should not carry an address", code)
		}
	}
}

func TestReadCSRParsing(t *testing.T) {
	s := newFakeSession()
	s.exprs["$mstatus"] = "0x1800"
	s.exprs["$mcause"] = "mcause = 0x2"
	s.exprs["$mtval"] = "  0x13 \t"
	s.exprs["$mie"] = "2184"
	s.exprs["$bad"] = "void"

	tgt := newRiscV("riscv32", 4)
	cases := map[string]uint64{
		"mstatus": 0x1800,
		"mcause":  2,
		"mtval":   0x13,
		"mie":     2184,
	}
	for name, want := range cases {
		got, err := tgt.readCSR(s, name)
		if err != nil {
			t.Errorf("readCSR(%s): %v", name, err)
			continue
		}
		if got != want {
			t.Errorf("readCSR(%s) = %#x, want %#x", name, got, want)
		}
	}
	if _, err := tgt.readCSR(s, "bad"); err == nil {
		t.Error("unparseable CSR value should error")
	}
	if _, err := tgt.readCSR(s, "missing"); err == nil {
		t.Error("missing CSR should error")
	}
}

func TestRiscvReadFaultStateLoadFault(t *testing.T) {
	s := newFakeSession()
	s.exprs["$mcause"] = "0x5"
	s.exprs["$mtval"] = "0x80000000"
	s.exprs["$mepc"] = "0x80000124"

	tgt := newRiscV("riscv32", 4)
	state, err := tgt.ReadFaultState(s)
	if err != nil {
		t.Fatal(err)
	}
	if state.FaultType != "load_access_fault" {
		t.Errorf("fault type = %q", state.FaultType)
	}
	if !state.IsValid || state.FaultAddress != 0x80000000 {
		t.Errorf("fault address = %#x valid=%v", state.FaultAddress, state.IsValid)
	}
	if state.RawRegisters["mepc"] != 0x80000124 {
		t.Errorf("mepc = %#x", state.RawRegisters["mepc"])
	}
	if state.Decoded["trap_type"] != "exception" {
		t.Errorf("trap_type = %q", state.Decoded["trap_type"])
	}
}

func TestRiscvReadFaultStateIllegalInstruction(t *testing.T) {
	s := newFakeSession()
	s.exprs["$mcause"] = "0x2"
	s.exprs["$mtval"] = "0xffffffff"
	s.exprs["$mepc"] = "0x80000200"

	tgt := newRiscV("riscv32", 4)
	state, err := tgt.ReadFaultState(s)
	if err != nil {
		t.Fatal(err)
	}
	if state.FaultType != "illegal_instruction" {
		t.Errorf("fault type = %q", state.FaultType)
	}
	if state.IsValid {
		t.Error("mtval is an encoding here, not an address")
	}
	if state.Decoded["illegal_instruction"] != "0xffffffff" {
		t.Errorf("illegal_instruction = %q", state.Decoded["illegal_instruction"])
	}
}

func TestRiscvReadFaultStateInterrupt(t *testing.T) {
	s := newFakeSession()
	s.exprs["$mcause"] = "0x80000007"
	s.exprs["$mtval"] = "0x0"
	s.exprs["$mepc"] = "0x80000100"

	tgt := newRiscV("riscv32", 4)
	state, err := tgt.ReadFaultState(s)
	if err != nil {
		t.Fatal(err)
	}
	if state.FaultType != "interrupt" {
		t.Errorf("fault type = %q", state.FaultType)
	}
	if state.Decoded["trap_name"] != "Machine timer interrupt" {
		t.Errorf("trap_name = %q", state.Decoded["trap_name"])
	}
}

func TestRiscvDecodeExceptionFrame(t *testing.T) {
	s := newFakeSession()
	s.regs = map[string]uint64{"sp": 0x80010000, "ra": 0x80000300, "a0": 42}
	s.exprs["$mepc"] = "0x80000124"

	tgt := newRiscV("riscv32", 4)
	frame, err := tgt.DecodeExceptionFrame(s, 0)
	if err != nil {
		t.Fatal(err)
	}
	if frame.FrameType != "riscv_trap" {
		t.Errorf("frame type = %q", frame.FrameType)
	}
	if frame.ReturnAddress != 0x80000124 {
		t.Errorf("return address = %#x, want mepc", frame.ReturnAddress)
	}
	if frame.StackPointer != 0x80010000 {
		t.Errorf("stack pointer = %#x", frame.StackPointer)
	}
	if frame.Registers["a0"] != 42 {
		t.Errorf("a0 = %d", frame.Registers["a0"])
	}
}

func TestRiscvCheckInterruptConfig(t *testing.T) {
	s := newFakeSession()
	s.exprs["$mie"] = "0x888" // MSI | MTI | MEI
	s.exprs["$mip"] = "0x80"  // MTI pending
	s.exprs["$mstatus"] = "0x0"

	tgt := newRiscV("riscv32", 4)
	analysis, err := tgt.CheckInterruptConfig(s)
	if err != nil {
		t.Fatal(err)
	}
	if len(analysis.Enabled) != 3 {
		t.Errorf("enabled = %+v", analysis.Enabled)
	}
	if len(analysis.Pending) != 1 || analysis.Pending[0].Name != "MTI" {
		t.Errorf("pending = %+v", analysis.Pending)
	}
	if len(analysis.Warnings) != 1 {
		t.Fatalf("warnings = %v, want the mstatus.MIE warning", analysis.Warnings)
	}
	if analysis.Warnings[0] != "Global machine interrupts disabled (mstatus.MIE=0)" {
		t.Errorf("warning = %q", analysis.Warnings[0])
	}
	if analysis.Priorities["global_enable"] != 0 {
		t.Errorf("global_enable = %d", analysis.Priorities["global_enable"])
	}
}

func TestRiscvCheckInterruptConfigPLIC(t *testing.T) {
	s := newFakeSession()
	s.exprs["$mie"] = "0x888"
	s.exprs["$mip"] = "0x0"
	s.exprs["$mstatus"] = "0x8"
	s.words[plicThreshold] = 3

	tgt := newRiscV("riscv32", 4)
	analysis, err := tgt.CheckInterruptConfig(s)
	if err != nil {
		t.Fatal(err)
	}
	if len(analysis.Warnings) != 1 {
		t.Fatalf("warnings = %v, want the PLIC threshold warning", analysis.Warnings)
	}
	if analysis.Warnings[0] != "PLIC threshold is 3. Interrupts with priority <= 3 are masked." {
		t.Errorf("warning = %q", analysis.Warnings[0])
	}
}

func TestRiscvGetMemoryProtectionNAPOT(t *testing.T) {
	s := newFakeSession()
	// entry 0: NAPOT, R+W, pmpaddr 0xFFFF -> 512KB at 0
	s.exprs["$pmpaddr0"] = "0xffff"
	s.exprs["$pmpcfg0"] = "0x1b" // R | W | A=NAPOT
	// entry 1 unreadable: walk stops

	tgt := newRiscV("riscv32", 4)
	config, err := tgt.GetMemoryProtection(s)
	if err != nil {
		t.Fatal(err)
	}
	if !config.Enabled {
		t.Error("PMP with regions should report enabled")
	}
	if len(config.Regions) != 1 {
		t.Fatalf("regions = %d, want 1", len(config.Regions))
	}
	r := config.Regions[0]
	if r.Permissions != "RW-" {
		t.Errorf("permissions = %q, want RW-", r.Permissions)
	}
	if r.Size != 8<<16 {
		t.Errorf("size = %#x, want %#x", r.Size, uint64(8<<16))
	}
	if r.BaseAddress != 0 {
		t.Errorf("base = %#x, want 0", r.BaseAddress)
	}
	if r.Attributes["mode"] != "NAPOT" {
		t.Errorf("mode = %v", r.Attributes["mode"])
	}
}

func TestRiscvGetMemoryProtectionTOR(t *testing.T) {
	s := newFakeSession()
	s.exprs["$pmpaddr0"] = "0x20000000"
	s.exprs["$pmpcfg0"] = "0x0d" // R | X | A=TOR
	s.exprs["$pmpaddr1"] = "0x0"
	s.exprs["$pmpcfg1"] = "0x0" // rest of pmpcfg0's lanes handled below
	// entries 1-7 share pmpcfg0/pmpcfg1; zero config bytes are skipped
	for i := 1; i < 8; i++ {
		s.exprs["$pmpaddr"+string(rune('0'+i))] = "0x0"
	}

	tgt := newRiscV("riscv32", 4)
	config, err := tgt.GetMemoryProtection(s)
	if err != nil {
		t.Fatal(err)
	}
	if len(config.Regions) != 1 {
		t.Fatalf("regions = %d, want 1", len(config.Regions))
	}
	r := config.Regions[0]
	if r.Permissions != "R-X" {
		t.Errorf("permissions = %q, want R-X", r.Permissions)
	}
	if r.Attributes["mode"] != "TOR" {
		t.Errorf("mode = %v", r.Attributes["mode"])
	}
	if r.Size != 0 {
		t.Errorf("size = %d, want 0 (TOR bound not derivable per-entry)", r.Size)
	}
	if r.BaseAddress != 0x20000000<<2 {
		t.Errorf("base = %#x", r.BaseAddress)
	}
}

func TestRiscvGetMemoryProtectionAbsent(t *testing.T) {
	s := newFakeSession() // no pmp CSRs at all

	tgt := newRiscV("riscv64", 8)
	config, err := tgt.GetMemoryProtection(s)
	if err != nil {
		t.Fatalf("missing PMP must not error: %v", err)
	}
	if config.Enabled || len(config.Regions) != 0 {
		t.Errorf("config = %+v, want empty disabled", config)
	}
	if config.DefaultPermissions != "RWX" {
		t.Errorf("default permissions = %q", config.DefaultPermissions)
	}
}
