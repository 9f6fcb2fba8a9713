package gdb

// StopReason classifies why the target stopped. The values match the
// reason strings GDB/MI reports in *stopped records.
type StopReason string

const (
	StopBreakpoint     StopReason = "breakpoint-hit"
	StopWatchpoint     StopReason = "watchpoint-trigger"
	StopSignal         StopReason = "signal"
	StopStep           StopReason = "end-stepping-range"
	StopExited         StopReason = "exited"
	StopExitedNormally StopReason = "exited-normally"
)

// stopReasonFromMI maps an MI reason string onto the known set. GDB
// emits more reasons than we model (signal-received, solib-event, ...);
// anything unrecognized collapses to StopSignal so callers always get
// a valid classification.
func stopReasonFromMI(reason string) StopReason {
	switch StopReason(reason) {
	case StopBreakpoint, StopWatchpoint, StopSignal, StopStep, StopExited, StopExitedNormally:
		return StopReason(reason)
	}
	return StopSignal
}

// StopInfo describes a single stop event. One is produced per resume
// operation and handed to the caller; it is never reused.
type StopInfo struct {
	Reason           StopReason
	Address          uint64
	SignalName       string // set only for StopSignal
	BreakpointNumber int    // 0 when no breakpoint was involved
}

// BreakpointInfo mirrors the bkpt payload GDB returns on -break-insert.
type BreakpointInfo struct {
	Number   int
	Address  uint64
	Enabled  bool
	Location string
	Hits     int
}

// EvalResult holds the textual result of -data-evaluate-expression.
// Type is filled only when GDB reports one alongside the value.
type EvalResult struct {
	Value string
	Type  string
}

// Frame is one backtrace entry from -stack-list-frames.
type Frame struct {
	Level int
	Addr  uint64
	Func  string
	File  string
	Line  int
}
