package arch

import "fmt"

// FaultState is the architecture-agnostic fault summary. FaultAddress is
// meaningful only when IsValid is set; the two always travel together.
type FaultState struct {
	FaultType    string
	FaultAddress uint64
	IsValid      bool
	RawRegisters map[string]uint64
	Decoded      map[string]string
}

// ToMap renders the fault state with hex-formatted addresses for
// serialization toward the tool layer.
func (f *FaultState) ToMap() map[string]any {
	var addr any
	if f.FaultAddress != 0 {
		addr = hexWord(f.FaultAddress)
	}
	raw := make(map[string]string, len(f.RawRegisters))
	for k, v := range f.RawRegisters {
		raw[k] = hexWord(v)
	}
	return map[string]any{
		"fault_type":    f.FaultType,
		"fault_address": addr,
		"is_valid":      f.IsValid,
		"raw_registers": raw,
		"decoded":       f.Decoded,
	}
}

// ExceptionFrame captures the register set recovered on exception entry,
// from the stack on Cortex-M or the live register file on RISC-V.
type ExceptionFrame struct {
	Registers     map[string]uint64
	ReturnAddress uint64
	StackPointer  uint64
	FrameType     string
}

func (e *ExceptionFrame) ToMap() map[string]any {
	regs := make(map[string]string, len(e.Registers))
	for k, v := range e.Registers {
		regs[k] = hexWord(v)
	}
	return map[string]any{
		"registers":      regs,
		"return_address": hexWord(e.ReturnAddress),
		"stack_pointer":  hexWord(e.StackPointer),
		"frame_type":     e.FrameType,
	}
}

// InterruptInfo describes one interrupt line. Priority is -1 when the
// controller does not report one. Active is set only by controllers
// that expose an active state, such as the NVIC.
type InterruptInfo struct {
	Number   int
	Name     string
	Priority int
	Enabled  bool
	Pending  bool
	Active   bool
}

// InterruptAnalysis is the result of probing the interrupt controller.
// Priorities uses the architecture's native ordering; on Cortex-M a
// lower numeric value means higher priority.
type InterruptAnalysis struct {
	Enabled    []InterruptInfo
	Pending    []InterruptInfo
	Priorities map[string]int
	Warnings   []string
}

func (a *InterruptAnalysis) ToMap() map[string]any {
	enabled := make([]map[string]any, 0, len(a.Enabled))
	for _, i := range a.Enabled {
		var prio any
		if i.Priority >= 0 {
			prio = i.Priority
		}
		enabled = append(enabled, map[string]any{
			"number": i.Number, "name": i.Name, "priority": prio, "active": i.Active,
		})
	}
	pending := make([]map[string]any, 0, len(a.Pending))
	for _, i := range a.Pending {
		pending = append(pending, map[string]any{
			"number": i.Number, "name": i.Name,
		})
	}
	return map[string]any{
		"enabled":    enabled,
		"pending":    pending,
		"priorities": a.Priorities,
		"warnings":   a.Warnings,
	}
}

// MemoryRegion is one protection region. Permissions is a 3-character
// R/W/X mask string such as "RW-".
type MemoryRegion struct {
	Number      int
	BaseAddress uint64
	Size        uint64
	Permissions string
	Enabled     bool
	Attributes  map[string]any
}

// MemoryProtectionConfig describes MPU/PMP state. DefaultPermissions
// applies to memory no region covers.
type MemoryProtectionConfig struct {
	Enabled            bool
	Regions            []MemoryRegion
	DefaultPermissions string
}

func (m *MemoryProtectionConfig) ToMap() map[string]any {
	regions := make([]map[string]any, 0, len(m.Regions))
	for _, r := range m.Regions {
		regions = append(regions, map[string]any{
			"number":      r.Number,
			"base":        hexWord(r.BaseAddress),
			"size":        r.Size,
			"permissions": r.Permissions,
			"enabled":     r.Enabled,
			"attributes":  r.Attributes,
		})
	}
	return map[string]any{
		"enabled":             m.Enabled,
		"regions":             regions,
		"default_permissions": m.DefaultPermissions,
	}
}

func hexWord(v uint64) string {
	return fmt.Sprintf("0x%08x", v)
}
