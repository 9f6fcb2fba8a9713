package arch

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"strconv"
	"strings"

	"golang.org/x/arch/riscv64/riscv64asm"
)

// PLIC layout for the QEMU virt machine. Platform-dependent but stable
// across the boards this tool targets.
const (
	plicPriorityBase = 0x0C000000
	plicPendingBase  = 0x0C001000
	plicEnableBase   = 0x0C002000
	plicThreshold    = 0x0C200000
	plicClaim        = 0x0C200004
)

// riscvExceptionNames maps mcause exception codes to their privileged-architecture names.
var riscvExceptionNames = map[uint64]string{
	0:  "Instruction address misaligned",
	1:  "Instruction access fault",
	2:  "Illegal instruction",
	3:  "Breakpoint",
	4:  "Load address misaligned",
	5:  "Load access fault",
	6:  "Store/AMO address misaligned",
	7:  "Store/AMO access fault",
	8:  "Environment call from U-mode",
	9:  "Environment call from S-mode",
	11: "Environment call from M-mode",
	12: "Instruction page fault",
	13: "Load page fault",
	15: "Store/AMO page fault",
}

var riscvInterruptNames = map[uint64]string{
	1:  "Supervisor software interrupt",
	3:  "Machine software interrupt",
	5:  "Supervisor timer interrupt",
	7:  "Machine timer interrupt",
	9:  "Supervisor external interrupt",
	11: "Machine external interrupt",
}

var riscvFaultTypes = map[uint64]string{
	0:  "instruction_misaligned",
	1:  "instruction_access_fault",
	2:  "illegal_instruction",
	3:  "breakpoint",
	4:  "load_misaligned",
	5:  "load_access_fault",
	6:  "store_misaligned",
	7:  "store_access_fault",
	8:  "ecall_user",
	9:  "ecall_supervisor",
	11: "ecall_machine",
	12: "instruction_page_fault",
	13: "load_page_fault",
	15: "store_page_fault",
}

// RiscV implements Target for RV32 and RV64 machine-mode targets. All
// trap state comes from named CSRs via expression evaluation; only the
// PLIC is memory mapped.
type RiscV struct {
	name    string
	ptrSize int
}

func newRiscV(name string, ptrSize int) *RiscV {
	return &RiscV{name: name, ptrSize: ptrSize}
}

func (t *RiscV) Name() string { return t.name }

func (t *RiscV) RegisterNames() []string {
	return []string{
		"zero", "ra", "sp", "gp", "tp",
		"t0", "t1", "t2",
		"s0", "s1",
		"a0", "a1", "a2", "a3", "a4", "a5", "a6", "a7",
		"s2", "s3", "s4", "s5", "s6", "s7", "s8", "s9", "s10", "s11",
		"t3", "t4", "t5", "t6",
		"pc",
	}
}

func (t *RiscV) PointerSize() int { return t.ptrSize }

// readCSR evaluates $name and parses GDB's textual answer, which is
// either a bare value or "name = value".
func (t *RiscV) readCSR(s Session, name string) (uint64, error) {
	text, err := s.Evaluate("$" + name)
	if err != nil {
		return 0, err
	}
	if i := strings.LastIndex(text, "="); i >= 0 {
		text = text[i+1:]
	}
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, " \t"); i >= 0 {
		text = text[:i]
	}
	v, err := strconv.ParseUint(text, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("cannot parse csr %s value %q: %v", name, text, err)
	}
	return v, nil
}

type mcauseInfo struct {
	Type string // "interrupt" or "exception"
	Code uint64
	Name string
}

// decodeMcause splits mcause into interrupt/exception and cause code.
// The interrupt flag sits in the register's top bit, so its position
// depends on the pointer width.
func decodeMcause(value uint64, ptrSize int) mcauseInfo {
	isInterrupt := value&(1<<(ptrSize*8-1)) != 0
	code := value & 0x7FFFFFFF

	if isInterrupt {
		name, ok := riscvInterruptNames[code]
		if !ok {
			name = fmt.Sprintf("Unknown interrupt (%d)", code)
		}
		return mcauseInfo{Type: "interrupt", Code: code, Name: name}
	}
	name, ok := riscvExceptionNames[code]
	if !ok {
		name = fmt.Sprintf("Unknown exception (%d)", code)
	}
	return mcauseInfo{Type: "exception", Code: code, Name: name}
}

func riscvFaultType(info mcauseInfo) string {
	if info.Type == "interrupt" {
		return "interrupt"
	}
	if ft, ok := riscvFaultTypes[info.Code]; ok {
		return ft
	}
	return "unknown_trap"
}

// mtvalIsAddress reports whether mtval holds a faulting address for
// this exception code (access faults and page faults).
func mtvalIsAddress(code uint64) bool {
	switch code {
	case 1, 5, 7, 12, 13, 15:
		return true
	}
	return false
}

// ReadFaultState reads mcause, mtval, and mepc and decodes the trap.
// For illegal-instruction traps mtval carries the offending encoding;
// it is disassembled best-effort for the decoded summary.
func (t *RiscV) ReadFaultState(s Session) (*FaultState, error) {
	mcause, err := t.readCSR(s, "mcause")
	if err != nil {
		return nil, err
	}
	mtval, err := t.readCSR(s, "mtval")
	if err != nil {
		return nil, err
	}
	mepc, err := t.readCSR(s, "mepc")
	if err != nil {
		return nil, err
	}

	info := decodeMcause(mcause, t.ptrSize)
	decoded := map[string]string{
		"trap_type": info.Type,
		"trap_name": info.Name,
	}

	state := &FaultState{
		FaultType: riscvFaultType(info),
		RawRegisters: map[string]uint64{
			"mcause": mcause,
			"mtval":  mtval,
			"mepc":   mepc,
		},
		Decoded: decoded,
	}

	if info.Type == "exception" {
		if mtvalIsAddress(info.Code) {
			state.FaultAddress = mtval
			state.IsValid = true
		} else if info.Code == 2 {
			decoded["illegal_instruction"] = fmt.Sprintf("0x%08x", mtval)
			if text := disasmRiscv(uint32(mtval)); text != "" {
				decoded["illegal_instruction_text"] = text
			}
		}
	}
	return state, nil
}

// disasmRiscv renders one instruction word, or "" when it does not
// decode (compressed or truly invalid encodings).
func disasmRiscv(word uint32) string {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], word)
	inst, err := riscv64asm.Decode(buf[:])
	if err != nil {
		return ""
	}
	return riscv64asm.GNUSyntax(inst)
}

// DecodeExceptionFrame reconstructs the trap frame. RISC-V hardware
// does not stack registers on trap entry, so the frame comes from the
// live register file with mepc as the return address; the stackPointer
// argument is ignored.
func (t *RiscV) DecodeExceptionFrame(s Session, stackPointer uint64) (*ExceptionFrame, error) {
	regs, err := s.ReadRegisters(t.RegisterNames())
	if err != nil {
		return nil, err
	}
	mepc, err := t.readCSR(s, "mepc")
	if err != nil {
		return nil, err
	}
	return &ExceptionFrame{
		Registers:     regs,
		ReturnAddress: mepc,
		StackPointer:  regs["sp"],
		FrameType:     "riscv_trap",
	}, nil
}

// CheckInterruptConfig reads mie/mip/mstatus and flags a cleared global
// enable. The PLIC threshold probe is best effort: boards without a
// PLIC simply fail the memory read and the probe is skipped.
func (t *RiscV) CheckInterruptConfig(s Session) (*InterruptAnalysis, error) {
	mie, err := t.readCSR(s, "mie")
	if err != nil {
		return nil, err
	}
	mip, err := t.readCSR(s, "mip")
	if err != nil {
		return nil, err
	}
	mstatus, err := t.readCSR(s, "mstatus")
	if err != nil {
		return nil, err
	}

	var enabled, pending []InterruptInfo
	interruptBits := []struct {
		bit  int
		name string
	}{
		{3, "MSI"},
		{7, "MTI"},
		{11, "MEI"},
	}
	for _, ib := range interruptBits {
		if mie&(1<<ib.bit) != 0 {
			enabled = append(enabled, InterruptInfo{Number: ib.bit, Name: ib.name, Priority: -1, Enabled: true})
		}
		if mip&(1<<ib.bit) != 0 {
			pending = append(pending, InterruptInfo{Number: ib.bit, Name: ib.name, Priority: -1, Pending: true})
		}
	}

	var warnings []string
	globalEnable := mstatus&0x08 != 0
	if !globalEnable {
		warnings = append(warnings, "Global machine interrupts disabled (mstatus.MIE=0)")
	}

	// PLIC threshold: interrupts at or below it are masked.
	if data, err := s.ReadMemory(plicThreshold, 4); err == nil && len(data) >= 4 {
		threshold := leWord(data)
		if threshold > 0 {
			warnings = append(warnings, fmt.Sprintf(
				"PLIC threshold is %d. Interrupts with priority <= %d are masked.",
				threshold, threshold))
		}
	}

	priorities := map[string]int{
		"MSI":           int(mie >> 3 & 1),
		"MTI":           int(mie >> 7 & 1),
		"MEI":           int(mie >> 11 & 1),
		"global_enable": boolToInt(globalEnable),
	}

	return &InterruptAnalysis{
		Enabled:    enabled,
		Pending:    pending,
		Priorities: priorities,
		Warnings:   warnings,
	}, nil
}

// GetMemoryProtection walks the first 8 PMP entries. CSR read failures
// end the walk with the entries gathered so far; hardware without PMP
// reports an empty, disabled configuration.
func (t *RiscV) GetMemoryProtection(s Session) (*MemoryProtectionConfig, error) {
	regions := []MemoryRegion{}

	for i := 0; i < 8; i++ {
		pmpaddr, err := t.readCSR(s, fmt.Sprintf("pmpaddr%d", i))
		if err != nil {
			break
		}
		pmpcfg, err := t.readCSR(s, fmt.Sprintf("pmpcfg%d", i/4))
		if err != nil {
			break
		}
		cfg := pmpcfg >> (i % 4 * 8) & 0xFF
		if cfg == 0 {
			continue
		}

		r := cfg&0x01 != 0
		w := cfg&0x02 != 0
		x := cfg&0x04 != 0
		a := cfg >> 3 & 0x03
		locked := cfg&0x80 != 0

		if a == 0 { // OFF
			continue
		}

		permissions := ""
		permissions += flag(r, "R")
		permissions += flag(w, "W")
		permissions += flag(x, "X")

		// pmpaddr holds bits [33:2] (RV32) of the physical address.
		base := pmpaddr << 2
		var size uint64
		var mode string

		switch a {
		case 1: // TOR: bound comes from the previous entry, unknown here
			mode = "TOR"
		case 2: // NA4
			mode = "NA4"
			size = 4
		case 3: // NAPOT: region size encoded in the trailing ones
			mode = "NAPOT"
			if pmpaddr == 0 {
				size = wholeAddressSpace(t.ptrSize)
			} else {
				trailingOnes := bits.TrailingZeros64(^pmpaddr)
				size = 8 << trailingOnes
				base = (pmpaddr &^ (1<<trailingOnes - 1)) << 2
			}
		}

		regions = append(regions, MemoryRegion{
			Number:      i,
			BaseAddress: base,
			Size:        size,
			Permissions: permissions,
			Enabled:     true,
			Attributes: map[string]any{
				"mode":   mode,
				"locked": locked,
			},
		})
	}

	return &MemoryProtectionConfig{
		Enabled:            len(regions) > 0,
		Regions:            regions,
		DefaultPermissions: "RWX",
	}, nil
}

func (t *RiscV) AnalyzeCrash(s Session) (map[string]any, error) {
	return analyzeCrash(t, s)
}

func wholeAddressSpace(ptrSize int) uint64 {
	if ptrSize >= 8 {
		return ^uint64(0)
	}
	return 1 << (ptrSize * 8)
}

func flag(set bool, c string) string {
	if set {
		return c
	}
	return "-"
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
