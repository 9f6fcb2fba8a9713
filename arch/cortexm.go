package arch

import "fmt"

// Cortex-M System Control Block, NVIC, and MPU register addresses.
// These are fixed by the ARMv7-M/ARMv8-M memory map.
const (
	cfsrAddr  = 0xE000ED28 // Configurable Fault Status
	hfsrAddr  = 0xE000ED2C // HardFault Status
	dfsrAddr  = 0xE000ED30 // Debug Fault Status
	mmfarAddr = 0xE000ED34 // MemManage Fault Address
	bfarAddr  = 0xE000ED38 // BusFault Address

	shpr1Addr = 0xE000ED18 // MemManage, BusFault, UsageFault priorities
	shpr2Addr = 0xE000ED1C // SVCall priority
	shpr3Addr = 0xE000ED20 // PendSV, SysTick priorities

	nvicISERBase = 0xE000E100 // Interrupt Set Enable
	nvicISPRBase = 0xE000E200 // Interrupt Set Pending
	nvicIABRBase = 0xE000E300 // Interrupt Active Bit

	mpuTypeAddr = 0xE000ED90
	mpuCtrlAddr = 0xE000ED94
	mpuRNRAddr  = 0xE000ED98
	mpuRBARAddr = 0xE000ED9C
	mpuRASRAddr = 0xE000EDA0

	// ARMv8-M Security Attribution Unit. Present on TrustZone cores
	// (M23/M33); not part of the default fault path.
	sauCtrlAddr = 0xE000EDD0
	sauTypeAddr = 0xE000EDD4
	sauRNRAddr  = 0xE000EDD8
	sauRBARAddr = 0xE000EDDC
	sauRLARAddr = 0xE000EDE0
)

type cortexMVariant int

const (
	cortexMFull cortexMVariant = iota
	// cortexMReduced covers M0/M0+: no CFSR/MMFAR/BFAR, HardFault only.
	cortexMReduced
	// cortexMTrustZone covers M23/M33: full fault model plus the SAU.
	cortexMTrustZone
)

// CortexM implements Target for ARMv6-M/v7-M/v8-M profile cores
// (M0, M0+, M3, M4, M7, M23, M33).
type CortexM struct {
	name    string
	variant cortexMVariant
}

func newCortexM(name string, variant cortexMVariant) *CortexM {
	return &CortexM{name: name, variant: variant}
}

func (t *CortexM) Name() string { return t.name }

func (t *CortexM) RegisterNames() []string {
	return []string{
		"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7",
		"r8", "r9", "r10", "r11", "r12", "sp", "lr", "pc", "xpsr",
	}
}

func (t *CortexM) PointerSize() int { return 4 }

// decodeCFSR expands the Configurable Fault Status Register into its
// set bit mnemonics with human-readable causes.
func decodeCFSR(value uint32) map[string]string {
	decoded := map[string]string{}

	// MemManage fault status, bits 0-7
	if value&0x01 != 0 {
		decoded["IACCVIOL"] = "Instruction access violation"
	}
	if value&0x02 != 0 {
		decoded["DACCVIOL"] = "Data access violation"
	}
	if value&0x08 != 0 {
		decoded["MUNSTKERR"] = "MemManage fault on unstacking for return"
	}
	if value&0x10 != 0 {
		decoded["MSTKERR"] = "MemManage fault on stacking for exception"
	}
	if value&0x20 != 0 {
		decoded["MLSPERR"] = "MemManage fault during FP lazy state preservation"
	}
	if value&0x80 != 0 {
		decoded["MMARVALID"] = "MMFAR holds valid fault address"
	}

	// BusFault status, bits 8-15
	if value&0x0100 != 0 {
		decoded["IBUSERR"] = "Instruction bus error"
	}
	if value&0x0200 != 0 {
		decoded["PRECISERR"] = "Precise data bus error"
	}
	if value&0x0400 != 0 {
		decoded["IMPRECISERR"] = "Imprecise data bus error"
	}
	if value&0x0800 != 0 {
		decoded["UNSTKERR"] = "BusFault on unstacking for return"
	}
	if value&0x1000 != 0 {
		decoded["STKERR"] = "BusFault on stacking for exception"
	}
	if value&0x2000 != 0 {
		decoded["LSPERR"] = "BusFault during FP lazy state preservation"
	}
	if value&0x8000 != 0 {
		decoded["BFARVALID"] = "BFAR holds valid fault address"
	}

	// UsageFault status, bits 16-31
	if value&0x010000 != 0 {
		decoded["UNDEFINSTR"] = "Undefined instruction"
	}
	if value&0x020000 != 0 {
		decoded["INVSTATE"] = "Invalid state (Thumb bit)"
	}
	if value&0x040000 != 0 {
		decoded["INVPC"] = "Invalid PC load (bad EXC_RETURN)"
	}
	if value&0x080000 != 0 {
		decoded["NOCP"] = "No coprocessor (FPU disabled?)"
	}
	if value&0x100000 != 0 {
		decoded["STKOF"] = "Stack overflow detected (ARMv8-M)"
	}
	if value&0x01000000 != 0 {
		decoded["UNALIGNED"] = "Unaligned memory access"
	}
	if value&0x02000000 != 0 {
		decoded["DIVBYZERO"] = "Divide by zero"
	}

	return decoded
}

func decodeHFSR(value uint32) map[string]string {
	decoded := map[string]string{}
	if value&0x02 != 0 {
		decoded["VECTTBL"] = "Vector table read error on exception"
	}
	if value&0x40000000 != 0 {
		decoded["FORCED"] = "Forced HardFault (escalated from other fault)"
	}
	if value&0x80000000 != 0 {
		decoded["DEBUGEVT"] = "Debug event triggered HardFault"
	}
	return decoded
}

// determineFaultType classifies a fault from CFSR and HFSR. The checks
// run in fixed precedence order; the first matching group wins.
func determineFaultType(cfsr, hfsr uint32) string {
	switch {
	case cfsr&0xFF != 0:
		return "memory_protection_fault"
	case cfsr&0xFF00 != 0:
		return "bus_fault"
	case cfsr&0x010000 != 0:
		return "undefined_instruction"
	case cfsr&0x020000 != 0:
		return "invalid_state"
	case cfsr&0x040000 != 0:
		return "invalid_pc"
	case cfsr&0x080000 != 0:
		return "coprocessor_fault"
	case cfsr&0x01000000 != 0:
		return "unaligned_access"
	case cfsr&0x02000000 != 0:
		return "divide_by_zero"
	case hfsr&0x40000000 != 0:
		return "escalated_fault"
	case hfsr&0x02 != 0:
		return "vector_table_fault"
	}
	return "unknown_fault"
}

// ReadFaultState reads CFSR, HFSR, MMFAR, and BFAR and decodes the
// cause of the active fault. On reduced cores only HFSR exists, so the
// result is a generic hardfault with no address.
func (t *CortexM) ReadFaultState(s Session) (*FaultState, error) {
	if t.variant == cortexMReduced {
		hfsr, err := readWord(s, hfsrAddr)
		if err != nil {
			return nil, err
		}
		return &FaultState{
			FaultType:    "hardfault",
			RawRegisters: map[string]uint64{"HFSR": uint64(hfsr)},
			Decoded:      decodeHFSR(hfsr),
		}, nil
	}

	cfsr, err := readWord(s, cfsrAddr)
	if err != nil {
		return nil, err
	}
	hfsr, err := readWord(s, hfsrAddr)
	if err != nil {
		return nil, err
	}
	mmfar, err := readWord(s, mmfarAddr)
	if err != nil {
		return nil, err
	}
	bfar, err := readWord(s, bfarAddr)
	if err != nil {
		return nil, err
	}

	decoded := decodeCFSR(cfsr)
	for k, v := range decodeHFSR(hfsr) {
		decoded[k] = v
	}

	state := &FaultState{
		FaultType: determineFaultType(cfsr, hfsr),
		RawRegisters: map[string]uint64{
			"CFSR":  uint64(cfsr),
			"HFSR":  uint64(hfsr),
			"MMFAR": uint64(mmfar),
			"BFAR":  uint64(bfar),
		},
		Decoded: decoded,
	}

	if cfsr&0x80 != 0 { // MMARVALID
		state.FaultAddress = uint64(mmfar)
		state.IsValid = true
	} else if cfsr&0x8000 != 0 { // BFARVALID
		state.FaultAddress = uint64(bfar)
		state.IsValid = true
	}
	return state, nil
}

// DecodeExceptionFrame reads the 8-word frame the hardware pushed on
// exception entry: R0-R3, R12, LR, PC, xPSR, little-endian. LR bit 4
// clear means the core lazily stacked an FP context below the frame.
func (t *CortexM) DecodeExceptionFrame(s Session, stackPointer uint64) (*ExceptionFrame, error) {
	if stackPointer == 0 {
		regs, err := s.ReadRegisters([]string{"sp"})
		if err != nil {
			return nil, err
		}
		stackPointer = regs["sp"]
	}

	frame, err := s.ReadMemory(stackPointer, 32)
	if err != nil {
		return nil, err
	}
	word := func(offset int) uint64 {
		if offset >= len(frame) {
			return 0
		}
		return uint64(leWord(frame[offset:]))
	}

	registers := map[string]uint64{
		"r0":   word(0),
		"r1":   word(4),
		"r2":   word(8),
		"r3":   word(12),
		"r12":  word(16),
		"lr":   word(20),
		"pc":   word(24),
		"xpsr": word(28),
	}

	frameType := "basic"
	if registers["lr"]&0x10 == 0 {
		frameType = "extended_fpu"
	}

	return &ExceptionFrame{
		Registers:     registers,
		ReturnAddress: registers["pc"],
		StackPointer:  stackPointer,
		FrameType:     frameType,
	}, nil
}

// CheckInterruptConfig reads the system handler priorities and the
// first NVIC enable/pending bank, and flags priority assignments that
// commonly break RTOS scheduling. Lower numbers are higher priority.
func (t *CortexM) CheckInterruptConfig(s Session) (*InterruptAnalysis, error) {
	shpr1, err := readWord(s, shpr1Addr)
	if err != nil {
		return nil, err
	}
	shpr2, err := readWord(s, shpr2Addr)
	if err != nil {
		return nil, err
	}
	shpr3, err := readWord(s, shpr3Addr)
	if err != nil {
		return nil, err
	}

	priorities := map[string]int{
		"MemManage":  int(shpr1 >> 0 & 0xFF),
		"BusFault":   int(shpr1 >> 8 & 0xFF),
		"UsageFault": int(shpr1 >> 16 & 0xFF),
		"SVCall":     int(shpr2 >> 24 & 0xFF),
		"PendSV":     int(shpr3 >> 16 & 0xFF),
		"SysTick":    int(shpr3 >> 24 & 0xFF),
	}

	var warnings []string
	if priorities["PendSV"] < priorities["SVCall"] {
		warnings = append(warnings, fmt.Sprintf(
			"PendSV priority (%d) is higher than SVCall (%d). This can cause context switch issues in RTOS implementations.",
			priorities["PendSV"], priorities["SVCall"]))
	}
	if priorities["SysTick"] < priorities["SVCall"] {
		warnings = append(warnings, fmt.Sprintf(
			"SysTick priority (%d) is higher than SVCall (%d). Time-critical syscalls may be delayed.",
			priorities["SysTick"], priorities["SVCall"]))
	}

	// First 32 external IRQs only.
	iser, err := readWord(s, nvicISERBase)
	if err != nil {
		return nil, err
	}
	ispr, err := readWord(s, nvicISPRBase)
	if err != nil {
		return nil, err
	}
	// Active state is informational; a missing IABR just reads as none.
	iabr, _ := readWord(s, nvicIABRBase)

	var enabled, pending []InterruptInfo
	for i := 0; i < 32; i++ {
		active := iabr&(1<<i) != 0
		if iser&(1<<i) != 0 {
			enabled = append(enabled, InterruptInfo{
				Number: i, Name: fmt.Sprintf("IRQ%d", i), Priority: -1, Enabled: true, Active: active,
			})
		}
		if ispr&(1<<i) != 0 {
			pending = append(pending, InterruptInfo{
				Number: i, Name: fmt.Sprintf("IRQ%d", i), Priority: -1, Pending: true, Active: active,
			})
		}
	}

	return &InterruptAnalysis{
		Enabled:    enabled,
		Pending:    pending,
		Priorities: priorities,
		Warnings:   warnings,
	}, nil
}

// mpuAPPermissions maps the 3-bit access-permission field to an R/W
// string. AP values 2 and 3 differ only in unprivileged rights, which
// this summary does not distinguish; the raw AP value is preserved in
// the region attributes.
var mpuAPPermissions = map[uint32]string{
	0: "---",
	1: "RW-",
	2: "RW-",
	3: "RW-",
	5: "R--",
	6: "R--",
}

// GetMemoryProtection walks the MPU regions by writing the region
// selector and reading back RBAR/RASR. A read failure mid-walk yields
// the regions gathered so far rather than an error.
func (t *CortexM) GetMemoryProtection(s Session) (*MemoryProtectionConfig, error) {
	mpuType, err := readWord(s, mpuTypeAddr)
	if err != nil {
		return nil, err
	}
	numRegions := int(mpuType >> 8 & 0xFF)
	if numRegions == 0 {
		// No MPU. TrustZone cores may still carry an SAU.
		regions := []MemoryRegion{}
		if t.variant == cortexMTrustZone {
			regions = append(regions, t.readSAURegions(s)...)
		}
		return &MemoryProtectionConfig{Enabled: false, Regions: regions, DefaultPermissions: "---"}, nil
	}

	mpuCtrl, err := readWord(s, mpuCtrlAddr)
	if err != nil {
		return nil, err
	}
	enabled := mpuCtrl&0x01 != 0
	privdefena := mpuCtrl&0x04 != 0

	if numRegions > 16 {
		numRegions = 16
	}

	regions := []MemoryRegion{}
	for i := 0; i < numRegions; i++ {
		if _, err := s.WriteMemory(mpuRNRAddr, []byte{byte(i), 0, 0, 0}); err != nil {
			break
		}
		rbar, err := readWord(s, mpuRBARAddr)
		if err != nil {
			break
		}
		rasr, err := readWord(s, mpuRASRAddr)
		if err != nil {
			break
		}

		if rasr&0x01 == 0 {
			continue
		}

		sizeBits := rasr >> 1 & 0x1F
		var size uint64
		if sizeBits >= 4 {
			size = 1 << (sizeBits + 1)
		}

		ap := rasr >> 24 & 0x07
		xn := rasr&0x10000000 != 0

		permissions, ok := mpuAPPermissions[ap]
		if !ok {
			permissions = "???"
		}
		if !xn {
			permissions = permissions[:2] + "X"
		}

		regions = append(regions, MemoryRegion{
			Number:      i,
			BaseAddress: uint64(rbar & 0xFFFFFFE0),
			Size:        size,
			Permissions: permissions,
			Enabled:     true,
			Attributes: map[string]any{
				"ap":         int(ap),
				"tex":        int(rasr >> 19 & 0x07),
				"shareable":  rasr&0x40000 != 0,
				"cacheable":  rasr&0x20000 != 0,
				"bufferable": rasr&0x10000 != 0,
			},
		})
	}

	if t.variant == cortexMTrustZone {
		regions = append(regions, t.readSAURegions(s)...)
	}

	defaultPerms := "---"
	if privdefena {
		defaultPerms = "RWX"
	}
	return &MemoryProtectionConfig{
		Enabled:            enabled,
		Regions:            regions,
		DefaultPermissions: defaultPerms,
	}, nil
}

// readSAURegions walks the Security Attribution Unit on TrustZone cores.
// The SAU partitions the address range into secure and non-secure halves
// rather than granting permissions; its regions are reported alongside
// the MPU ones with a unit marker. Best effort: any read failure ends
// the walk with what was gathered.
func (t *CortexM) readSAURegions(s Session) []MemoryRegion {
	sauCtrl, err := readWord(s, sauCtrlAddr)
	if err != nil || sauCtrl&0x01 == 0 {
		return nil
	}
	sauType, err := readWord(s, sauTypeAddr)
	if err != nil {
		return nil
	}
	numRegions := int(sauType & 0xFF)
	if numRegions > 8 {
		numRegions = 8
	}

	var regions []MemoryRegion
	for i := 0; i < numRegions; i++ {
		if _, err := s.WriteMemory(sauRNRAddr, []byte{byte(i), 0, 0, 0}); err != nil {
			break
		}
		rbar, err := readWord(s, sauRBARAddr)
		if err != nil {
			break
		}
		rlar, err := readWord(s, sauRLARAddr)
		if err != nil {
			break
		}
		if rlar&0x01 == 0 {
			continue
		}

		base := uint64(rbar &^ 0x1F)
		limit := uint64(rlar&^0x1F) | 0x1F
		regions = append(regions, MemoryRegion{
			Number:      i,
			BaseAddress: base,
			Size:        limit - base + 1,
			Permissions: "RWX",
			Enabled:     true,
			Attributes: map[string]any{
				"unit":            "SAU",
				"secure_callable": rlar&0x02 != 0,
			},
		})
	}
	return regions
}

func (t *CortexM) AnalyzeCrash(s Session) (map[string]any, error) {
	return analyzeCrash(t, s)
}

// readWord reads one little-endian 32-bit word of target memory.
func readWord(s Session, address uint64) (uint32, error) {
	data, err := s.ReadMemory(address, 4)
	if err != nil {
		return 0, err
	}
	return leWord(data), nil
}
