// Package arch decodes architecture-specific fault, interrupt, and
// memory-protection state for embedded targets under debug.
//
// Each supported instruction-set family implements Target against the
// narrow Session capability set, so the decoders work with anything
// that can read target memory and registers: a live debug session, a
// replayed trace, or a test fake.
//
// Adding an architecture means implementing Target and registering a
// constructor in the architectures table.
package arch

import (
	"fmt"
	"sort"
	"strings"
)

// Session is the capability set the decoders require from a debug
// session. ReadMemory returns raw bytes; Evaluate returns GDB's textual
// answer and the caller does any numeric parsing.
type Session interface {
	ReadMemory(address uint64, length int) ([]byte, error)
	WriteMemory(address uint64, data []byte) (bool, error)
	ReadRegisters(names []string) (map[string]uint64, error)
	ReadRegister(name string) (uint64, error)
	Evaluate(expression string) (string, error)
}

// Target is the per-architecture debugging capability contract.
type Target interface {
	// Name returns the canonical architecture identifier.
	Name() string
	// RegisterNames lists the general-purpose register file.
	RegisterNames() []string
	// PointerSize is 4 for 32-bit targets, 8 for 64-bit.
	PointerSize() int

	// ReadFaultState reads and decodes the fault/trap cause registers.
	ReadFaultState(s Session) (*FaultState, error)
	// DecodeExceptionFrame recovers the exception-entry register set.
	// stackPointer 0 means "use the current stack pointer".
	DecodeExceptionFrame(s Session, stackPointer uint64) (*ExceptionFrame, error)
	// CheckInterruptConfig probes the interrupt controller and flags
	// suspicious configurations.
	CheckInterruptConfig(s Session) (*InterruptAnalysis, error)
	// GetMemoryProtection reads the MPU/PMP region configuration.
	GetMemoryProtection(s Session) (*MemoryProtectionConfig, error)
	// AnalyzeCrash bundles the state-reading probes into one report.
	AnalyzeCrash(s Session) (map[string]any, error)
}

// analyzeCrash is the default composite probe shared by all targets.
func analyzeCrash(t Target, s Session) (map[string]any, error) {
	fault, err := t.ReadFaultState(s)
	if err != nil {
		return nil, err
	}
	frame, err := t.DecodeExceptionFrame(s, 0)
	if err != nil {
		return nil, err
	}
	interrupts, err := t.CheckInterruptConfig(s)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"architecture":    t.Name(),
		"fault":           fault.ToMap(),
		"exception_frame": frame.ToMap(),
		"interrupts":      interrupts.ToMap(),
	}, nil
}

// architectures maps identifier to constructor. The QEMU cpu aliases
// point at the variant handling that core's fault model.
var architectures = map[string]func() Target{
	"cortex-m":   func() Target { return newCortexM("cortex-m", cortexMFull) },
	"cortex-m0":  func() Target { return newCortexM("cortex-m0", cortexMReduced) },
	"cortex-m0+": func() Target { return newCortexM("cortex-m0+", cortexMReduced) },
	"cortex-m3":  func() Target { return newCortexM("cortex-m3", cortexMFull) },
	"cortex-m4":  func() Target { return newCortexM("cortex-m4", cortexMFull) },
	"cortex-m7":  func() Target { return newCortexM("cortex-m7", cortexMFull) },
	"cortex-m23": func() Target { return newCortexM("cortex-m23", cortexMTrustZone) },
	"cortex-m33": func() Target { return newCortexM("cortex-m33", cortexMTrustZone) },
	"riscv":      func() Target { return newRiscV("riscv", 4) },
	"riscv32":    func() Target { return newRiscV("riscv32", 4) },
	"riscv64":    func() Target { return newRiscV("riscv64", 8) },
	"rv32":       func() Target { return newRiscV("riscv32", 4) },
	"rv64":       func() Target { return newRiscV("riscv64", 8) },
}

// Get returns the target for an architecture name, case-insensitively.
func Get(name string) (Target, error) {
	ctor, ok := architectures[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown architecture: %s (supported: %s)",
			name, strings.Join(List(), ", "))
	}
	return ctor(), nil
}

// Detect guesses the architecture from QEMU cpu/machine names. It
// always answers; unrecognizable inputs fall back to "cortex-m", the
// most common embedded target.
func Detect(cpu, machine string) string {
	cpu = strings.ToLower(cpu)
	machine = strings.ToLower(machine)

	// Longest Cortex-M names first so "cortex-m0+" wins over "cortex-m0".
	for _, v := range []string{"cortex-m0+", "cortex-m0", "cortex-m33", "cortex-m23", "cortex-m7", "cortex-m4", "cortex-m3"} {
		if strings.Contains(cpu, v) {
			return v
		}
	}
	if strings.Contains(cpu, "cortex") {
		return "cortex-m"
	}

	if strings.Contains(cpu, "rv64") || strings.Contains(machine, "riscv64") {
		return "riscv64"
	}
	if strings.Contains(cpu, "rv32") || strings.Contains(machine, "riscv32") {
		return "riscv32"
	}
	if strings.Contains(machine, "sifive") {
		if strings.Contains(machine, "sifive_u") {
			return "riscv64"
		}
		return "riscv32"
	}
	if strings.Contains(cpu, "riscv") || strings.Contains(machine, "riscv") {
		return "riscv"
	}

	return "cortex-m"
}

// List returns the sorted set of supported architecture names.
func List() []string {
	names := make([]string, 0, len(architectures))
	for name := range architectures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// leWord assembles a little-endian 32-bit word, tolerating short reads.
func leWord(data []byte) uint32 {
	var v uint32
	for i := 0; i < 4 && i < len(data); i++ {
		v |= uint32(data[i]) << (8 * i)
	}
	return v
}
