// Package session ties one firmware image to a QEMU instance and a GDB
// bridge, and manages collections of such sessions by name.
package session

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"firmdbg/gdb"
	"firmdbg/qemu"
)

// Session is one live debug target: a QEMU machine frozen at reset with
// GDB attached and symbols loaded.
type Session struct {
	Name    string
	ElfPath string

	Qemu   *qemu.Controller
	Bridge *gdb.Bridge

	started bool
	log     *logrus.Entry
}

func New(name, elfPath, gdbPath string, qemuCfg qemu.Config) *Session {
	return &Session{
		Name:    name,
		ElfPath: elfPath,
		Qemu:    qemu.NewController(qemuCfg),
		Bridge:  gdb.New(gdbPath),
		log:     logrus.WithField("layer", "session"),
	}
}

// Start brings the target up: QEMU frozen at reset, GDB attached,
// symbols loaded. Partial failures tear down what already started.
func (s *Session) Start() error {
	if s.started {
		return nil
	}
	if err := s.Qemu.Start(s.ElfPath, true); err != nil {
		return err
	}
	if err := s.Bridge.Start(); err != nil {
		s.Qemu.Stop()
		return err
	}
	if ok, err := s.Bridge.Connect("localhost", s.Qemu.GdbPort()); err != nil || !ok {
		s.Stop()
		if err == nil {
			err = fmt.Errorf("gdb refused remote target on port %d", s.Qemu.GdbPort())
		}
		return err
	}
	if ok, err := s.Bridge.LoadSymbols(s.ElfPath); err != nil || !ok {
		s.log.WithError(err).Warnf("could not load symbols from %s", s.ElfPath)
	}
	s.started = true
	return nil
}

// Stop shuts everything down. Best effort on both halves.
func (s *Session) Stop() {
	s.Bridge.Close()
	s.Qemu.Stop()
	s.started = false
}

func (s *Session) Started() bool { return s.started }

func (s *Session) ensureStarted() error {
	if !s.started {
		return fmt.Errorf("session %q not started", s.Name)
	}
	return nil
}

// Execution control.

func (s *Session) Continue() (gdb.StopInfo, error) {
	if err := s.ensureStarted(); err != nil {
		return gdb.StopInfo{}, err
	}
	return s.Bridge.ContinueExecution()
}

func (s *Session) Step(instruction bool) (gdb.StopInfo, error) {
	if err := s.ensureStarted(); err != nil {
		return gdb.StopInfo{}, err
	}
	return s.Bridge.Step(instruction)
}

func (s *Session) StepOver(instruction bool) (gdb.StopInfo, error) {
	if err := s.ensureStarted(); err != nil {
		return gdb.StopInfo{}, err
	}
	return s.Bridge.StepOver(instruction)
}

func (s *Session) Finish() (gdb.StopInfo, error) {
	if err := s.ensureStarted(); err != nil {
		return gdb.StopInfo{}, err
	}
	return s.Bridge.Finish()
}

func (s *Session) Halt() error {
	if err := s.ensureStarted(); err != nil {
		return err
	}
	return s.Bridge.Halt()
}

// State inspection. These also satisfy the arch.Session interface, so a
// Session can be handed straight to an architecture decoder.

func (s *Session) ReadRegisters(names []string) (map[string]uint64, error) {
	if err := s.ensureStarted(); err != nil {
		return nil, err
	}
	return s.Bridge.ReadRegisters(names)
}

func (s *Session) ReadRegister(name string) (uint64, error) {
	if err := s.ensureStarted(); err != nil {
		return 0, err
	}
	return s.Bridge.ReadRegister(name)
}

func (s *Session) ReadMemory(address uint64, length int) ([]byte, error) {
	if err := s.ensureStarted(); err != nil {
		return nil, err
	}
	return s.Bridge.ReadMemory(address, length)
}

func (s *Session) WriteMemory(address uint64, data []byte) (bool, error) {
	if err := s.ensureStarted(); err != nil {
		return false, err
	}
	return s.Bridge.WriteMemory(address, data)
}

// Evaluate returns GDB's printed value for an expression.
func (s *Session) Evaluate(expression string) (string, error) {
	if err := s.ensureStarted(); err != nil {
		return "", err
	}
	result, err := s.Bridge.Evaluate(expression)
	if err != nil {
		return "", err
	}
	return result.Value, nil
}

// Breakpoints.

func (s *Session) SetBreakpoint(location, condition string, temporary bool) (*gdb.BreakpointInfo, error) {
	if err := s.ensureStarted(); err != nil {
		return nil, err
	}
	return s.Bridge.SetBreakpoint(location, condition, temporary)
}

func (s *Session) DeleteBreakpoint(number int) (bool, error) {
	if err := s.ensureStarted(); err != nil {
		return false, err
	}
	return s.Bridge.DeleteBreakpoint(number)
}

func (s *Session) EnableBreakpoint(number int) (bool, error) {
	if err := s.ensureStarted(); err != nil {
		return false, err
	}
	return s.Bridge.EnableBreakpoint(number)
}

func (s *Session) DisableBreakpoint(number int) (bool, error) {
	if err := s.ensureStarted(); err != nil {
		return false, err
	}
	return s.Bridge.DisableBreakpoint(number)
}

func (s *Session) Breakpoints() []*gdb.BreakpointInfo {
	return s.Bridge.Breakpoints()
}

func (s *Session) Backtrace(maxFrames int) ([]gdb.Frame, error) {
	if err := s.ensureStarted(); err != nil {
		return nil, err
	}
	return s.Bridge.Backtrace(maxFrames)
}

// VM control.

func (s *Session) Reset() (bool, error) {
	if err := s.ensureStarted(); err != nil {
		return false, err
	}
	return s.Qemu.Reset()
}

func (s *Session) SaveSnapshot(name string) (bool, error) {
	if err := s.ensureStarted(); err != nil {
		return false, err
	}
	return s.Qemu.SaveSnapshot(name)
}

func (s *Session) LoadSnapshot(name string) (bool, error) {
	if err := s.ensureStarted(); err != nil {
		return false, err
	}
	return s.Qemu.LoadSnapshot(name)
}

// VMStatus returns QEMU's run-state report for this session.
func (s *Session) VMStatus() (map[string]any, error) {
	if err := s.ensureStarted(); err != nil {
		return nil, err
	}
	return s.Qemu.QueryStatus()
}

func (s *Session) DeleteSnapshot(name string) (bool, error) {
	if err := s.ensureStarted(); err != nil {
		return false, err
	}
	return s.Qemu.DeleteSnapshot(name)
}
