package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/manifoldco/promptui"

	"firmdbg/arch"
	"firmdbg/gdb"
	"firmdbg/session"
)

type Shell struct {
	mgr *session.Manager
}

func NewShell(mgr *session.Manager) *Shell {
	return &Shell{mgr: mgr}
}

type cmdHandler struct {
	regex *regexp.Regexp
	fn    func(*Shell, interface{}) error
}

const numPat = `0[xX][0-9a-fA-F]+|[0-9]+`

var compiledCmds = []cmdHandler{
	{regexp.MustCompile(`^\s*(b|break|tb|tbreak)\s+(\S+)(?:\s+if\s+(.+))?$`), (*Shell).cmdBreak},
	{regexp.MustCompile(`^\s*(delete|del)\s+(` + numPat + `)$`), (*Shell).cmdDelete},
	{regexp.MustCompile(`^\s*(enable)\s+(` + numPat + `)$`), (*Shell).cmdEnable},
	{regexp.MustCompile(`^\s*(disable)\s+(` + numPat + `)$`), (*Shell).cmdDisable},
	{regexp.MustCompile(`^\s*(bl|breakpoints)\s*$`), (*Shell).cmdBreakList},
	{regexp.MustCompile(`^\s*(c|continue|cont|C|CONTINUE|CONT)\s*$`), (*Shell).cmdContinue},
	{regexp.MustCompile(`^\s*(si|stepi)\s*$`), (*Shell).cmdStepi},
	{regexp.MustCompile(`^\s*(step|STEP)\s*$`), (*Shell).cmdStep},
	{regexp.MustCompile(`^\s*(ni|nexti)\s*$`), (*Shell).cmdNexti},
	{regexp.MustCompile(`^\s*(n|next)\s*$`), (*Shell).cmdNext},
	{regexp.MustCompile(`^\s*(finish|fin)\s*$`), (*Shell).cmdFinish},
	{regexp.MustCompile(`^\s*(halt|interrupt)\s*$`), (*Shell).cmdHalt},
	{regexp.MustCompile(`^\s*(regs|registers)(?:\s+(.+))?$`), (*Shell).cmdRegs},
	{regexp.MustCompile(`^\s*(p|print|P|PRINT)\s+(.+)$`), (*Shell).cmdPrint},
	{regexp.MustCompile(`^\s*(db|xxd)\s+(` + numPat + `)(?:\s+(` + numPat + `))?$`), (*Shell).cmdDumpByte},
	{regexp.MustCompile(`^\s*(dd)\s+(` + numPat + `)(?:\s+(` + numPat + `))?$`), (*Shell).cmdDumpWord},
	{regexp.MustCompile(`^\s*(set8)\s+(` + numPat + `)\s+(` + numPat + `)$`), (*Shell).cmdSet8},
	{regexp.MustCompile(`^\s*(set16)\s+(` + numPat + `)\s+(` + numPat + `)$`), (*Shell).cmdSet16},
	{regexp.MustCompile(`^\s*(set|set32)\s+(` + numPat + `)\s+(` + numPat + `)$`), (*Shell).cmdSet32},
	{regexp.MustCompile(`^\s*(bt|backtrace|BT|BACKTRACE)(?:\s+(` + numPat + `))?$`), (*Shell).cmdBacktrace},
	{regexp.MustCompile(`^\s*(fault)\s*$`), (*Shell).cmdFault},
	{regexp.MustCompile(`^\s*(frame)(?:\s+(` + numPat + `))?$`), (*Shell).cmdFrame},
	{regexp.MustCompile(`^\s*(irq|interrupts)\s*$`), (*Shell).cmdIrq},
	{regexp.MustCompile(`^\s*(mpu|pmp|protection)\s*$`), (*Shell).cmdProtection},
	{regexp.MustCompile(`^\s*(crash)\s*$`), (*Shell).cmdCrash},
	{regexp.MustCompile(`^\s*(context|CONTEXT)\s*$`), (*Shell).cmdContext},
	{regexp.MustCompile(`^\s*(sessions)\s*$`), (*Shell).cmdSessions},
	{regexp.MustCompile(`^\s*(switch)(?:\s+(\S+))?$`), (*Shell).cmdSwitch},
	{regexp.MustCompile(`^\s*(load)\s+(\S+)(?:\s+(\S+))?(?:\s+(\S+))?$`), (*Shell).cmdLoad},
	{regexp.MustCompile(`^\s*(stop)(?:\s+(\S+))?$`), (*Shell).cmdStop},
	{regexp.MustCompile(`^\s*(reset)\s*$`), (*Shell).cmdReset},
	{regexp.MustCompile(`^\s*(status)\s*$`), (*Shell).cmdStatus},
	{regexp.MustCompile(`^\s*(save)\s+(\S+)$`), (*Shell).cmdSave},
	{regexp.MustCompile(`^\s*(restore)\s+(\S+)$`), (*Shell).cmdRestore},
	{regexp.MustCompile(`^\s*(delsnap)\s+(\S+)$`), (*Shell).cmdDelSnap},
	{regexp.MustCompile(`^\s*(archs)\s*$`), (*Shell).cmdArchs},
	{regexp.MustCompile(`^\s*(help|h|\?)\s*$`), (*Shell).cmdHelp},
}

func (sh *Shell) CmdExec(req string) error {
	for _, handler := range compiledCmds {
		if m := handler.regex.FindStringSubmatch(req); m != nil {
			return handler.fn(sh, m)
		}
	}
	return errors.New("unknown command (try 'help')")
}

func (sh *Shell) cur() (*session.Session, error) {
	return sh.mgr.CurrentSession()
}

func (sh *Shell) target() (arch.Target, error) {
	return sh.mgr.Architecture("")
}

var regPattern = regexp.MustCompile(`\$([a-zA-Z_][a-zA-Z0-9_]*)`)

// resolveRegisters substitutes $name tokens with the register's hex
// value so numeric command patterns can match. Unresolvable names stay
// as-is; print passes them through to the evaluator anyway.
func (sh *Shell) resolveRegisters(req string) string {
	sess, err := sh.cur()
	if err != nil {
		return req
	}
	return regPattern.ReplaceAllStringFunc(req, func(match string) string {
		val, err := sess.ReadRegister(strings.TrimPrefix(match, "$"))
		if err != nil {
			return match
		}
		return fmt.Sprintf("0x%x", val)
	})
}

func (sh *Shell) Interactive() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT)
	defer signal.Stop(sigChan)

	go func() {
		for range sigChan {
			Printf("\n^C - halting target...\n")
			if sess, err := sh.cur(); err == nil {
				if err := sess.Halt(); err != nil {
					LogError("failed to halt target: %v", err)
				}
			}
		}
	}()

	prev := ""

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "[firmdbg]$ ",
		HistoryFile:       "/tmp/firmdbg_history.txt",
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		FuncFilterInputRune: func(r rune) (rune, bool) {
			switch r {
			case readline.CharCtrlZ:
				return r, false
			}
			return r, true
		},
	})
	if err != nil {
		panic(err)
	}
	defer rl.Close()

	for {
		rl.SetPrompt(sh.prompt())

		req, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				if sess, serr := sh.cur(); serr == nil {
					if herr := sess.Halt(); herr != nil {
						LogError("failed to halt target: %v", herr)
					}
				}
				continue
			}
			if err == io.EOF {
				break
			}
			LogWarn("readline: %v", err)
			continue
		}

		if req == "" {
			if prev == "" {
				continue
			}
			req = prev
		}

		if req == "q" || req == "exit" || req == "quit" {
			break
		}

		prev = req

		resolvedReq := req
		if strings.Contains(req, "$") && !strings.HasPrefix(strings.TrimSpace(req), "p") {
			resolvedReq = sh.resolveRegisters(req)
		}

		if err := sh.CmdExec(resolvedReq); err != nil {
			LogError(err.Error())
		}
	}
}

func (sh *Shell) prompt() string {
	name := sh.mgr.CurrentName()
	if name == "" {
		return "[firmdbg]$ "
	}
	sess, err := sh.cur()
	if err == nil {
		if pc, err := sess.ReadRegister("pc"); err == nil {
			return fmt.Sprintf("[%sfirmdbg%s:%s:%s0x%x%s]$ ", ColorCyan, ColorReset, name, ColorCyan, pc, ColorReset)
		}
	}
	return fmt.Sprintf("[firmdbg:%s]$ ", name)
}

func args(a interface{}) ([]string, error) {
	m, ok := a.([]string)
	if !ok {
		return nil, errors.New("invalid arguments")
	}
	return m, nil
}

// breakpoints

func (sh *Shell) cmdBreak(a interface{}) error {
	m, err := args(a)
	if err != nil {
		return err
	}
	sess, err := sh.cur()
	if err != nil {
		return err
	}

	location := m[2]
	// bare addresses need the GDB address-of form
	if matched, _ := regexp.MatchString(`^(`+numPat+`)$`, location); matched {
		location = "*" + location
	}
	temporary := m[1] == "tb" || m[1] == "tbreak"
	condition := ""
	if len(m) > 3 {
		condition = m[3]
	}

	bp, err := sess.SetBreakpoint(location, condition, temporary)
	if err != nil {
		return err
	}
	Printf("breakpoint %d at 0x%08x\n", bp.Number, bp.Address)
	return nil
}

func (sh *Shell) cmdDelete(a interface{}) error {
	m, err := args(a)
	if err != nil {
		return err
	}
	sess, err := sh.cur()
	if err != nil {
		return err
	}
	num, err := strconv.Atoi(m[2])
	if err != nil {
		return err
	}
	ok, err := sess.DeleteBreakpoint(num)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("breakpoint %d not removed", num)
	}
	Printf("deleted breakpoint %d\n", num)
	return nil
}

func (sh *Shell) cmdEnable(a interface{}) error {
	m, err := args(a)
	if err != nil {
		return err
	}
	sess, err := sh.cur()
	if err != nil {
		return err
	}
	num, err := strconv.Atoi(m[2])
	if err != nil {
		return err
	}
	_, err = sess.EnableBreakpoint(num)
	return err
}

func (sh *Shell) cmdDisable(a interface{}) error {
	m, err := args(a)
	if err != nil {
		return err
	}
	sess, err := sh.cur()
	if err != nil {
		return err
	}
	num, err := strconv.Atoi(m[2])
	if err != nil {
		return err
	}
	_, err = sess.DisableBreakpoint(num)
	return err
}

func (sh *Shell) cmdBreakList(_ interface{}) error {
	sess, err := sh.cur()
	if err != nil {
		return err
	}
	bps := sess.Breakpoints()
	if len(bps) == 0 {
		fmt.Println("no breakpoints")
		return nil
	}
	for _, bp := range bps {
		state := "enabled"
		if !bp.Enabled {
			state = "disabled"
		}
		Printf("%d: 0x%08x %s (%s, %d hits)\n", bp.Number, bp.Address, bp.Location, state, bp.Hits)
	}
	return nil
}

// execution

func printStop(stop gdb.StopInfo) {
	switch stop.Reason {
	case gdb.StopBreakpoint:
		Printf("breakpoint %d hit at 0x%08x\n", stop.BreakpointNumber, stop.Address)
	case gdb.StopSignal:
		if stop.SignalName != "" {
			Printf("stopped by %s at 0x%08x\n", stop.SignalName, stop.Address)
		} else {
			Printf("stopped at 0x%08x\n", stop.Address)
		}
	case gdb.StopExited, gdb.StopExitedNormally:
		fmt.Println("target exited")
	default:
		Printf("stopped (%s) at 0x%08x\n", string(stop.Reason), stop.Address)
	}
}

func (sh *Shell) execAndReport(run func(*session.Session) (gdb.StopInfo, error)) error {
	sess, err := sh.cur()
	if err != nil {
		return err
	}
	stop, err := run(sess)
	if err != nil {
		return err
	}
	printStop(stop)
	return nil
}

func (sh *Shell) cmdContinue(_ interface{}) error {
	return sh.execAndReport(func(s *session.Session) (gdb.StopInfo, error) { return s.Continue() })
}

func (sh *Shell) cmdStep(_ interface{}) error {
	return sh.execAndReport(func(s *session.Session) (gdb.StopInfo, error) { return s.Step(false) })
}

func (sh *Shell) cmdStepi(_ interface{}) error {
	return sh.execAndReport(func(s *session.Session) (gdb.StopInfo, error) { return s.Step(true) })
}

func (sh *Shell) cmdNext(_ interface{}) error {
	return sh.execAndReport(func(s *session.Session) (gdb.StopInfo, error) { return s.StepOver(false) })
}

func (sh *Shell) cmdNexti(_ interface{}) error {
	return sh.execAndReport(func(s *session.Session) (gdb.StopInfo, error) { return s.StepOver(true) })
}

func (sh *Shell) cmdFinish(_ interface{}) error {
	return sh.execAndReport(func(s *session.Session) (gdb.StopInfo, error) { return s.Finish() })
}

func (sh *Shell) cmdHalt(_ interface{}) error {
	sess, err := sh.cur()
	if err != nil {
		return err
	}
	return sess.Halt()
}

// state

func (sh *Shell) cmdRegs(a interface{}) error {
	m, err := args(a)
	if err != nil {
		return err
	}
	sess, err := sh.cur()
	if err != nil {
		return err
	}
	tgt, err := sh.target()
	if err != nil {
		return err
	}

	var names []string
	if len(m) > 2 && m[2] != "" {
		names = strings.Fields(m[2])
	} else {
		names = tgt.RegisterNames()
	}

	regs, err := sess.ReadRegisters(names)
	if err != nil {
		return err
	}
	hLine("registers")
	for _, name := range names {
		val, ok := regs[name]
		if !ok {
			continue
		}
		Printf("%-8s 0x%08x\n", name, val)
	}
	return nil
}

func (sh *Shell) cmdPrint(a interface{}) error {
	m, err := args(a)
	if err != nil {
		return err
	}
	sess, err := sh.cur()
	if err != nil {
		return err
	}
	value, err := sess.Evaluate(m[2])
	if err != nil {
		return err
	}
	Printf("%s = %s\n", m[2], value)
	return nil
}

func (sh *Shell) readDumpArgs(m []string, defaultLen uint64) (uint64, uint64, error) {
	addr, err := strconv.ParseUint(m[2], 0, 64)
	if err != nil {
		return 0, 0, err
	}
	n := defaultLen
	if len(m) > 3 && m[3] != "" {
		n, err = strconv.ParseUint(m[3], 0, 64)
		if err != nil {
			return 0, 0, err
		}
	}
	return addr, n, nil
}

func (sh *Shell) cmdDumpByte(a interface{}) error {
	m, err := args(a)
	if err != nil {
		return err
	}
	sess, err := sh.cur()
	if err != nil {
		return err
	}
	addr, n, err := sh.readDumpArgs(m, 64)
	if err != nil {
		return err
	}
	data, err := sess.ReadMemory(addr, int(n))
	if err != nil {
		return err
	}
	dumpHex(addr, data, 1)
	return nil
}

func (sh *Shell) cmdDumpWord(a interface{}) error {
	m, err := args(a)
	if err != nil {
		return err
	}
	sess, err := sh.cur()
	if err != nil {
		return err
	}
	addr, n, err := sh.readDumpArgs(m, 16)
	if err != nil {
		return err
	}
	data, err := sess.ReadMemory(addr, int(n*4))
	if err != nil {
		return err
	}
	dumpHex(addr, data, 4)
	return nil
}

func (sh *Shell) writeValue(m []string, size int) error {
	sess, err := sh.cur()
	if err != nil {
		return err
	}
	addr, err := strconv.ParseUint(m[2], 0, 64)
	if err != nil {
		return err
	}
	value, err := strconv.ParseUint(m[3], 0, 64)
	if err != nil {
		return err
	}

	buf := make([]byte, size)
	switch size {
	case 1:
		buf[0] = byte(value)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(value))
	default:
		binary.LittleEndian.PutUint32(buf, uint32(value))
	}
	ok, err := sess.WriteMemory(addr, buf)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("write to 0x%x rejected", addr)
	}
	return nil
}

func (sh *Shell) cmdSet8(a interface{}) error {
	m, err := args(a)
	if err != nil {
		return err
	}
	return sh.writeValue(m, 1)
}

func (sh *Shell) cmdSet16(a interface{}) error {
	m, err := args(a)
	if err != nil {
		return err
	}
	return sh.writeValue(m, 2)
}

func (sh *Shell) cmdSet32(a interface{}) error {
	m, err := args(a)
	if err != nil {
		return err
	}
	return sh.writeValue(m, 4)
}

func (sh *Shell) cmdBacktrace(a interface{}) error {
	m, err := args(a)
	if err != nil {
		return err
	}
	sess, err := sh.cur()
	if err != nil {
		return err
	}
	max := 0
	if len(m) > 2 && m[2] != "" {
		v, err := strconv.ParseUint(m[2], 0, 32)
		if err != nil {
			return err
		}
		max = int(v)
	}
	frames, err := sess.Backtrace(max)
	if err != nil {
		return err
	}
	for _, f := range frames {
		loc := ""
		if f.File != "" {
			loc = fmt.Sprintf(" (%s:%d)", f.File, f.Line)
		}
		Printf("#%d 0x%08x %s%s\n", f.Level, f.Addr, f.Func, loc)
	}
	return nil
}

// architecture analysis

func (sh *Shell) cmdFault(_ interface{}) error {
	sess, err := sh.cur()
	if err != nil {
		return err
	}
	tgt, err := sh.target()
	if err != nil {
		return err
	}
	fault, err := tgt.ReadFaultState(sess)
	if err != nil {
		return err
	}
	hLine("fault state")
	printMap(fault.ToMap(), 0)
	return nil
}

func (sh *Shell) cmdFrame(a interface{}) error {
	m, err := args(a)
	if err != nil {
		return err
	}
	sess, err := sh.cur()
	if err != nil {
		return err
	}
	tgt, err := sh.target()
	if err != nil {
		return err
	}
	var sp uint64
	if len(m) > 2 && m[2] != "" {
		sp, err = strconv.ParseUint(m[2], 0, 64)
		if err != nil {
			return err
		}
	}
	frame, err := tgt.DecodeExceptionFrame(sess, sp)
	if err != nil {
		return err
	}
	hLine("exception frame")
	printMap(frame.ToMap(), 0)
	return nil
}

func (sh *Shell) cmdIrq(_ interface{}) error {
	sess, err := sh.cur()
	if err != nil {
		return err
	}
	tgt, err := sh.target()
	if err != nil {
		return err
	}
	analysis, err := tgt.CheckInterruptConfig(sess)
	if err != nil {
		return err
	}
	hLine("interrupts")
	printMap(analysis.ToMap(), 0)
	return nil
}

func (sh *Shell) cmdProtection(_ interface{}) error {
	sess, err := sh.cur()
	if err != nil {
		return err
	}
	tgt, err := sh.target()
	if err != nil {
		return err
	}
	config, err := tgt.GetMemoryProtection(sess)
	if err != nil {
		return err
	}
	hLine("memory protection")
	printMap(config.ToMap(), 0)
	return nil
}

func (sh *Shell) cmdCrash(_ interface{}) error {
	sess, err := sh.cur()
	if err != nil {
		return err
	}
	tgt, err := sh.target()
	if err != nil {
		return err
	}
	report, err := tgt.AnalyzeCrash(sess)
	if err != nil {
		return err
	}
	hLine("crash analysis")
	printMap(report, 0)
	return nil
}

func (sh *Shell) cmdContext(_ interface{}) error {
	if err := sh.cmdRegs([]string{"", "regs", ""}); err != nil {
		return err
	}
	hLine("backtrace")
	return sh.cmdBacktrace([]string{"", "bt", "8"})
}

// sessions

func (sh *Shell) cmdSessions(_ interface{}) error {
	names := sh.mgr.ListSessions()
	if len(names) == 0 {
		fmt.Println("no sessions")
		return nil
	}
	for _, name := range names {
		info, err := sh.mgr.SessionInfo(name)
		if err != nil {
			continue
		}
		marker := " "
		if info["current"] == true {
			marker = "*"
		}
		Printf("%s %s: %s [%s %s] gdb port %d\n",
			marker, name, info["elf_path"], info["machine"], info["cpu"], info["gdb_port"])
	}
	return nil
}

func (sh *Shell) cmdSwitch(a interface{}) error {
	m, err := args(a)
	if err != nil {
		return err
	}
	name := ""
	if len(m) > 2 {
		name = m[2]
	}
	if name == "" {
		names := sh.mgr.ListSessions()
		if len(names) == 0 {
			return errors.New("no sessions")
		}
		prompt := promptui.Select{Label: "Session", Items: names}
		_, picked, err := prompt.Run()
		if err != nil {
			return err
		}
		name = picked
	}
	return sh.mgr.SetCurrent(name)
}

func (sh *Shell) cmdLoad(a interface{}) error {
	m, err := args(a)
	if err != nil {
		return err
	}
	machine, cpu := "", ""
	if len(m) > 3 {
		machine = m[3]
	}
	if len(m) > 4 {
		cpu = m[4]
	}
	sess, err := sh.mgr.StartSession("", m[2], machine, cpu)
	if err != nil {
		return err
	}
	Printf("session %s started\n", sess.Name)
	return nil
}

func (sh *Shell) cmdStop(a interface{}) error {
	m, err := args(a)
	if err != nil {
		return err
	}
	name := ""
	if len(m) > 2 {
		name = m[2]
	}
	if name == "" {
		name = sh.mgr.CurrentName()
	}
	if name == "" {
		return errors.New("no active session")
	}
	if !sh.mgr.StopSession(name) {
		return fmt.Errorf("no session named %q", name)
	}
	Printf("session %s stopped\n", name)
	return nil
}

// VM control

func (sh *Shell) cmdReset(_ interface{}) error {
	sess, err := sh.cur()
	if err != nil {
		return err
	}
	ok, err := sess.Reset()
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("reset rejected")
	}
	fmt.Println("target reset")
	return nil
}

func (sh *Shell) cmdStatus(_ interface{}) error {
	sess, err := sh.cur()
	if err != nil {
		return err
	}
	status, err := sess.VMStatus()
	if err != nil {
		return err
	}
	hLine("vm status")
	printMap(status, 0)
	return nil
}

func (sh *Shell) snapshotOp(a interface{}, op func(*session.Session, string) (bool, error), verb string) error {
	m, err := args(a)
	if err != nil {
		return err
	}
	sess, err := sh.cur()
	if err != nil {
		return err
	}
	ok, err := op(sess, m[2])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("snapshot %s failed (machine may lack a snapshot-capable disk)", verb)
	}
	Printf("snapshot %s %s\n", m[2], verb)
	return nil
}

func (sh *Shell) cmdSave(a interface{}) error {
	return sh.snapshotOp(a, (*session.Session).SaveSnapshot, "saved")
}

func (sh *Shell) cmdRestore(a interface{}) error {
	return sh.snapshotOp(a, (*session.Session).LoadSnapshot, "restored")
}

func (sh *Shell) cmdDelSnap(a interface{}) error {
	return sh.snapshotOp(a, (*session.Session).DeleteSnapshot, "deleted")
}

func (sh *Shell) cmdArchs(_ interface{}) error {
	for _, name := range arch.List() {
		fmt.Println(name)
	}
	return nil
}

func (sh *Shell) cmdHelp(_ interface{}) error {
	fmt.Print(`execution:
  c / continue          resume until next stop
  step / si             step source line / instruction
  next / ni             step over source line / instruction
  finish                run until current function returns
  halt                  interrupt a running target (also Ctrl-C)
breakpoints:
  b <loc> [if <cond>]   set breakpoint (address or symbol)
  tb <loc>              temporary breakpoint
  delete/enable/disable <n>
  bl                    list breakpoints
state:
  regs [names]          dump registers
  p <expr>              evaluate expression
  db <addr> [n]         hexdump bytes
  dd <addr> [n]         hexdump 32-bit words
  set/set32/set16/set8 <addr> <value>
  bt [n]                backtrace
  context               registers + backtrace
analysis:
  fault                 decode fault/trap state
  frame [sp]            decode exception frame
  irq                   interrupt configuration
  mpu / pmp             memory protection regions
  crash                 full crash report
sessions:
  load <elf> [machine] [cpu]
  sessions / switch [name] / stop [name]
vm:
  status                QEMU run state
  reset / save <name> / restore <name> / delsnap <name>
`)
	return nil
}
