package gdb

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

const defaultCmdTimeout = 10 * time.Second

var (
	ErrNotStarted = errors.New("gdb not started")
	ErrGdbExited  = errors.New("gdb process exited")
)

// Bridge drives one GDB process through the MI3 interpreter. It is
// designed to connect to QEMU's gdbstub for embedded debugging.
//
// A Bridge is single-threaded by contract: callers must not issue a
// second operation before the first resolves. Halt is the one exception;
// it interrupts a blocked Continue.
type Bridge struct {
	GdbPath string

	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines chan string

	connected   bool
	running     atomic.Bool
	breakpoints map[int]*BreakpointInfo

	// interrupts queued while the target ran; their responses arrive
	// after the stop event and must be consumed to keep one response
	// per command.
	pendingInterrupts atomic.Int32

	cmdTimeout time.Duration
	log        *logrus.Entry
}

// New returns an unstarted bridge for the given GDB executable.
func New(gdbPath string) *Bridge {
	if gdbPath == "" {
		gdbPath = "gdb-multiarch"
	}
	return &Bridge{
		GdbPath:     gdbPath,
		breakpoints: make(map[int]*BreakpointInfo),
		cmdTimeout:  defaultCmdTimeout,
		log:         logrus.WithField("layer", "gdb"),
	}
}

// Start launches the GDB process and drains its startup banner.
func (b *Bridge) Start() error {
	cmd := exec.Command(b.GdbPath, "--nx", "--quiet", "--interpreter=mi3")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %v", b.GdbPath, err)
	}

	b.cmd = cmd
	b.stdin = stdin
	b.lines = make(chan string, 64)

	go func(lines chan<- string) {
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}(b.lines)

	// GDB prints version records and a first prompt before accepting
	// commands. Ignore a missing banner; a long-silent process will
	// fail on the first command instead.
	_, _ = b.collect(2 * time.Second)
	b.log.Debugf("started %s", b.GdbPath)
	return nil
}

// Connect attaches to a remote gdbstub. The boolean reflects GDB's
// protocol-level answer; the error reports transport failures.
func (b *Bridge) Connect(host string, port int) (bool, error) {
	if b.cmd == nil {
		if err := b.Start(); err != nil {
			return false, err
		}
	}
	if host == "" {
		host = "localhost"
	}
	records, err := b.send(fmt.Sprintf("-target-select remote %s:%d", host, port))
	if err != nil {
		return false, err
	}
	b.connected = checkSuccess(records)
	b.log.Debugf("connect %s:%d connected=%v", host, port, b.connected)
	return b.connected, nil
}

// LoadSymbols points GDB at the ELF containing symbols for the target.
func (b *Bridge) LoadSymbols(elfPath string) (bool, error) {
	records, err := b.send("-file-exec-and-symbols " + elfPath)
	if err != nil {
		return false, err
	}
	return checkSuccess(records), nil
}

// Connected reports whether -target-select succeeded.
func (b *Bridge) Connected() bool { return b.connected }

// Close tears the bridge down. Cleanup is best effort: the exit command,
// the pipe close and the process kill are each attempted regardless of
// earlier failures, and Close never reports an error for them.
func (b *Bridge) Close() {
	if b.cmd != nil {
		_, _ = io.WriteString(b.stdin, "-gdb-exit\n")
		_ = b.stdin.Close()

		done := make(chan struct{})
		go func() {
			_ = b.cmd.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			_ = b.cmd.Process.Kill()
			<-done
		}
		b.cmd = nil
	}
	b.connected = false
	b.running.Store(false)
	b.pendingInterrupts.Store(0)
	b.breakpoints = make(map[int]*BreakpointInfo)
}

// === Execution control ===

// ContinueExecution resumes the target and blocks until it stops.
func (b *Bridge) ContinueExecution() (StopInfo, error) {
	return b.execRun("-exec-continue")
}

// Step executes one source line, or one instruction when instruction
// is true.
func (b *Bridge) Step(instruction bool) (StopInfo, error) {
	if instruction {
		return b.execRun("-exec-step-instruction")
	}
	return b.execRun("-exec-step")
}

// StepOver steps without descending into calls.
func (b *Bridge) StepOver(instruction bool) (StopInfo, error) {
	if instruction {
		return b.execRun("-exec-next-instruction")
	}
	return b.execRun("-exec-next")
}

// Finish runs until the current function returns.
func (b *Bridge) Finish() (StopInfo, error) {
	return b.execRun("-exec-finish")
}

// Halt interrupts a running target. While the target runs GDB does not
// read MI commands, so the interrupt is also delivered as SIGINT to the
// GDB process, the same way the console interrupts a foreground target.
// The -exec-interrupt itself is answered only after the stop event; that
// response belongs to no caller and is drained before the next command.
func (b *Bridge) Halt() error {
	if b.cmd == nil {
		return ErrNotStarted
	}
	if !b.running.Load() {
		// Already stopped: GDB answers immediately, so a plain round
		// trip keeps the command/response pairing intact.
		_, err := b.send("-exec-interrupt")
		return err
	}
	if err := b.queueInterrupt(); err != nil {
		return err
	}
	if err := unix.Kill(b.cmd.Process.Pid, unix.SIGINT); err != nil {
		return fmt.Errorf("failed to interrupt gdb: %v", err)
	}
	return nil
}

// queueInterrupt writes -exec-interrupt without reading its response.
// GDB answers it after the stop event; drainInterrupts consumes that
// answer.
func (b *Bridge) queueInterrupt() error {
	b.pendingInterrupts.Inc()
	if _, err := io.WriteString(b.stdin, "-exec-interrupt\n"); err != nil {
		b.pendingInterrupts.Dec()
		return err
	}
	return nil
}

// drainInterrupts discards one queued interrupt response per pending
// interrupt, each terminated by its own prompt.
func (b *Bridge) drainInterrupts() {
	for b.pendingInterrupts.Load() > 0 {
		if _, err := b.collect(b.cmdTimeout); err != nil {
			return
		}
		b.pendingInterrupts.Dec()
	}
}

// execRun issues an execution command and waits for the stop event.
func (b *Bridge) execRun(command string) (StopInfo, error) {
	records, err := b.send(command)
	if err != nil {
		return StopInfo{}, err
	}
	if stopped(records) {
		info := parseStop(records)
		b.recordHit(info)
		return info, nil
	}
	if !checkSuccess(records) {
		// ^error ("the program is not being run", ...): no stop event
		// will follow. Degrade to the degenerate classification.
		return parseStop(records), nil
	}

	b.running.Store(true)
	defer b.running.Store(false)

	more, err := b.waitStopped()
	if err != nil {
		return StopInfo{}, err
	}
	info := parseStop(append(records, more...))
	b.recordHit(info)
	return info, nil
}

func (b *Bridge) recordHit(info StopInfo) {
	if info.Reason != StopBreakpoint {
		return
	}
	if bp, ok := b.breakpoints[info.BreakpointNumber]; ok {
		bp.Hits++
	}
}

func stopped(records []Record) bool {
	for _, r := range records {
		if r.Message == "stopped" {
			return true
		}
	}
	return false
}

// waitStopped reads records until a *stopped event and its trailing
// prompt arrive. There is no deadline: a continue with no breakpoint
// blocks until the target stops for any reason.
func (b *Bridge) waitStopped() ([]Record, error) {
	var records []Record
	sawStop := false
	for line := range b.lines {
		if isPrompt(line) {
			if sawStop {
				b.drainInterrupts()
				return records, nil
			}
			// Only a queued interrupt can be answered before the
			// stop; its prompt closes that response.
			if b.pendingInterrupts.Load() > 0 {
				b.pendingInterrupts.Dec()
			}
			continue
		}
		rec, ok, err := parseRecord(line)
		if err != nil {
			b.log.Debugf("skipping unparseable line: %v", err)
			continue
		}
		if !ok {
			continue
		}
		records = append(records, rec)
		if rec.Message == "stopped" {
			sawStop = true
		}
	}
	return records, ErrGdbExited
}

// === Registers ===

// ReadRegisters reads CPU registers. With names it evaluates each $name;
// with nil it lists the whole register file, keyed r<index>.
func (b *Bridge) ReadRegisters(names []string) (map[string]uint64, error) {
	if len(names) > 0 {
		result := make(map[string]uint64, len(names))
		for _, name := range names {
			records, err := b.send("-data-evaluate-expression $" + name)
			if err != nil {
				return nil, err
			}
			if value := parseEvalResult(records); value != nil {
				result[name] = parseInt(value.Value)
			}
		}
		return result, nil
	}
	records, err := b.send("-data-list-register-values x")
	if err != nil {
		return nil, err
	}
	return parseRegisterValues(records), nil
}

// ReadRegister reads a single register by name (without the $).
func (b *Bridge) ReadRegister(name string) (uint64, error) {
	regs, err := b.ReadRegisters([]string{name})
	if err != nil {
		return 0, err
	}
	return regs[name], nil
}

// === Memory ===

// ReadMemory reads length raw bytes starting at address. A short or
// absent payload is a failure; there is no partial-read success state.
func (b *Bridge) ReadMemory(address uint64, length int) ([]byte, error) {
	records, err := b.send(fmt.Sprintf("-data-read-memory-bytes 0x%x %d", address, length))
	if err != nil {
		return nil, err
	}
	data := parseMemoryBytes(records)
	if len(data) != length {
		return nil, fmt.Errorf("cannot read %d bytes at 0x%x", length, address)
	}
	return data, nil
}

// WriteMemory writes data at address.
func (b *Bridge) WriteMemory(address uint64, data []byte) (bool, error) {
	records, err := b.send(fmt.Sprintf("-data-write-memory-bytes 0x%x %s", address, hex.EncodeToString(data)))
	if err != nil {
		return false, err
	}
	return checkSuccess(records), nil
}

// === Breakpoints ===

// SetBreakpoint inserts a breakpoint at location (function name,
// file:line, or *address). A failed insert is a hard error.
func (b *Bridge) SetBreakpoint(location, condition string, temporary bool) (*BreakpointInfo, error) {
	command := "-break-insert"
	if temporary {
		command += " -t"
	}
	if condition != "" {
		command += fmt.Sprintf(" -c %q", condition)
	}
	command += " " + location

	records, err := b.send(command)
	if err != nil {
		return nil, err
	}
	bp := parseBreakpoint(records)
	if bp == nil {
		return nil, fmt.Errorf("failed to set breakpoint at %s", location)
	}
	b.breakpoints[bp.Number] = bp
	b.log.Debugf("breakpoint %d set at %s", bp.Number, location)
	return bp, nil
}

// DeleteBreakpoint removes breakpoint number. The local table entry is
// dropped only when GDB acknowledges the delete.
func (b *Bridge) DeleteBreakpoint(number int) (bool, error) {
	records, err := b.send("-break-delete " + strconv.Itoa(number))
	if err != nil {
		return false, err
	}
	if !checkSuccess(records) {
		return false, nil
	}
	delete(b.breakpoints, number)
	return true, nil
}

// DisableBreakpoint disables breakpoint number without removing it.
func (b *Bridge) DisableBreakpoint(number int) (bool, error) {
	records, err := b.send("-break-disable " + strconv.Itoa(number))
	if err != nil {
		return false, err
	}
	return checkSuccess(records), nil
}

// EnableBreakpoint re-enables breakpoint number.
func (b *Bridge) EnableBreakpoint(number int) (bool, error) {
	records, err := b.send("-break-enable " + strconv.Itoa(number))
	if err != nil {
		return false, err
	}
	return checkSuccess(records), nil
}

// Breakpoints lists the bridge's breakpoint table, ordered by number.
func (b *Bridge) Breakpoints() []*BreakpointInfo {
	bps := make([]*BreakpointInfo, 0, len(b.breakpoints))
	for _, bp := range b.breakpoints {
		bps = append(bps, bp)
	}
	sort.Slice(bps, func(i, j int) bool { return bps[i].Number < bps[j].Number })
	return bps
}

// === Evaluation and stack ===

// Evaluate evaluates a C expression and returns the textual result.
// Protocol-level failures yield the "<error>" value, not an error.
func (b *Bridge) Evaluate(expression string) (EvalResult, error) {
	records, err := b.send(fmt.Sprintf("-data-evaluate-expression %q", expression))
	if err != nil {
		return EvalResult{}, err
	}
	if result := parseEvalResult(records); result != nil {
		return *result, nil
	}
	return EvalResult{Value: "<error>"}, nil
}

// Backtrace returns up to maxFrames stack frames.
func (b *Bridge) Backtrace(maxFrames int) ([]Frame, error) {
	if maxFrames <= 0 {
		maxFrames = 20
	}
	records, err := b.send(fmt.Sprintf("-stack-list-frames 0 %d", maxFrames-1))
	if err != nil {
		return nil, err
	}
	return parseBacktrace(records), nil
}

// === Wire ===

// send writes one MI command and collects records up to the prompt.
func (b *Bridge) send(command string) ([]Record, error) {
	if b.cmd == nil {
		return nil, ErrNotStarted
	}
	b.drainInterrupts()
	b.log.Debugf("> %s", command)
	if _, err := io.WriteString(b.stdin, command+"\n"); err != nil {
		return nil, fmt.Errorf("write to gdb: %v", err)
	}
	return b.collect(b.cmdTimeout)
}

// collect reads records until the "(gdb)" prompt or the timeout.
func (b *Bridge) collect(timeout time.Duration) ([]Record, error) {
	var records []Record
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case line, ok := <-b.lines:
			if !ok {
				return records, ErrGdbExited
			}
			if isPrompt(line) {
				return records, nil
			}
			rec, parsed, err := parseRecord(line)
			if err != nil {
				b.log.Debugf("skipping unparseable line: %v", err)
				continue
			}
			if parsed {
				records = append(records, rec)
			}
		case <-timer.C:
			return records, fmt.Errorf("gdb command timed out after %v", timeout)
		}
	}
}
