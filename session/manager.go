package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"firmdbg/arch"
	"firmdbg/qemu"
)

// ManagerConfig holds tool paths, overridable through the environment.
type ManagerConfig struct {
	GdbPath         string
	QemuArmPath     string
	QemuRiscv32Path string
	QemuRiscv64Path string
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ConfigFromEnv builds a ManagerConfig from DEBUGGER_* variables,
// falling back to the standard tool names on PATH.
func ConfigFromEnv() ManagerConfig {
	return ManagerConfig{
		GdbPath:         envOr("DEBUGGER_GDB_PATH", "gdb-multiarch"),
		QemuArmPath:     envOr("DEBUGGER_QEMU_ARM_PATH", "qemu-system-arm"),
		QemuRiscv32Path: envOr("DEBUGGER_QEMU_RISCV32_PATH", "qemu-system-riscv32"),
		QemuRiscv64Path: envOr("DEBUGGER_QEMU_RISCV64_PATH", "qemu-system-riscv64"),
	}
}

// Info pairs a session with the machine description it was started
// with, so the right architecture decoder can be picked later.
type Info struct {
	Session  *Session
	Machine  string
	CPU      string
	ArchName string
}

// Manager owns named sessions. All methods are safe for concurrent use.
type Manager struct {
	cfg ManagerConfig

	mu       sync.Mutex
	sessions map[string]*Info
	starting map[string]bool // names reserved while their session boots
	current  string

	nextPort atomic.Int32
	log      *logrus.Entry
}

func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		cfg:      cfg,
		sessions: make(map[string]*Info),
		starting: make(map[string]bool),
		log:      logrus.WithField("layer", "manager"),
	}
	m.nextPort.Store(1234)
	return m
}

// allocPort hands out gdbstub ports. The matching QMP port lives 10000
// above so two sessions never collide on either listener.
func (m *Manager) allocPort() int {
	return int(m.nextPort.Inc()) - 1
}

// qemuPathFor picks the emulator binary for a detected architecture.
func (m *Manager) qemuPathFor(archName string) string {
	switch {
	case strings.HasPrefix(archName, "riscv64") || strings.HasPrefix(archName, "rv64"):
		return m.cfg.QemuRiscv64Path
	case strings.HasPrefix(archName, "riscv") || strings.HasPrefix(archName, "rv32"):
		return m.cfg.QemuRiscv32Path
	default:
		return m.cfg.QemuArmPath
	}
}

// uniqueName derives a session name from the firmware filename,
// suffixing _2, _3, ... when the stem is already taken. Callers must
// hold mu.
func (m *Manager) uniqueName(elfPath string) string {
	stem := strings.TrimSuffix(filepath.Base(elfPath), filepath.Ext(elfPath))
	if stem == "" {
		stem = "session"
	}
	name := stem
	for i := 2; ; i++ {
		if !m.reserved(name) {
			return name
		}
		name = fmt.Sprintf("%s_%d", stem, i)
	}
}

// reserved reports whether a name is held by a live session or one
// still starting up. Callers must hold mu.
func (m *Manager) reserved(name string) bool {
	if _, taken := m.sessions[name]; taken {
		return true
	}
	return m.starting[name]
}

// StartSession launches firmware under QEMU and attaches GDB. An empty
// name is derived from the ELF filename. Empty machine and cpu fall
// back to the Cortex-M3 board defaults. The first session started
// becomes the current one.
func (m *Manager) StartSession(name, elfPath, machine, cpu string) (*Session, error) {
	m.mu.Lock()
	if name == "" {
		name = m.uniqueName(elfPath)
	} else if m.reserved(name) {
		m.mu.Unlock()
		return nil, fmt.Errorf("session %q already exists", name)
	}
	// Hold the name across the multi-second QEMU+GDB startup so a
	// concurrent start cannot claim it and overwrite the entry.
	m.starting[name] = true
	gdbPort := m.allocPort()
	m.mu.Unlock()

	base := qemu.DefaultConfig()
	if machine == "" {
		machine = base.Machine
	}
	if cpu == "" {
		cpu = base.CPU
	}
	archName := arch.Detect(cpu, machine)

	cfg := qemu.Config{
		QemuPath: m.qemuPathFor(archName),
		Machine:  machine,
		CPU:      cpu,
		Memory:   base.Memory,
		GdbPort:  gdbPort,
		QmpPort:  gdbPort + 10000,
	}

	s := New(name, elfPath, m.cfg.GdbPath, cfg)
	if err := s.Start(); err != nil {
		m.mu.Lock()
		delete(m.starting, name)
		m.mu.Unlock()
		return nil, fmt.Errorf("start session %q: %v", name, err)
	}

	m.mu.Lock()
	delete(m.starting, name)
	m.sessions[name] = &Info{Session: s, Machine: machine, CPU: cpu, ArchName: archName}
	if m.current == "" {
		m.current = name
	}
	m.mu.Unlock()

	m.log.Infof("session %q started: %s on %s/%s (arch %s, gdb port %d)",
		name, elfPath, machine, cpu, archName, gdbPort)
	return s, nil
}

// StopSession tears one session down. Reports whether it existed.
func (m *Manager) StopSession(name string) bool {
	m.mu.Lock()
	info, ok := m.sessions[name]
	if ok {
		delete(m.sessions, name)
		if m.current == name {
			m.current = ""
			for other := range m.sessions {
				m.current = other
				break
			}
		}
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	info.Session.Stop()
	return true
}

// StopAll tears every session down in parallel.
func (m *Manager) StopAll() {
	m.mu.Lock()
	infos := make([]*Info, 0, len(m.sessions))
	for _, info := range m.sessions {
		infos = append(infos, info)
	}
	m.sessions = make(map[string]*Info)
	m.current = ""
	m.mu.Unlock()

	var g errgroup.Group
	for _, info := range infos {
		info := info
		g.Go(func() error {
			info.Session.Stop()
			return nil
		})
	}
	_ = g.Wait()
}

// GetSession looks a session up by name; empty name means the current
// one.
func (m *Manager) GetSession(name string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if name == "" {
		name = m.current
	}
	if name == "" {
		return nil, fmt.Errorf("no active session")
	}
	info, ok := m.sessions[name]
	if !ok {
		return nil, fmt.Errorf("no session named %q", name)
	}
	return info.Session, nil
}

// CurrentSession returns the current session, or an error if none.
func (m *Manager) CurrentSession() (*Session, error) {
	return m.GetSession("")
}

func (m *Manager) CurrentName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// SetCurrent switches which session unnamed operations target.
func (m *Manager) SetCurrent(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[name]; !ok {
		return fmt.Errorf("no session named %q", name)
	}
	m.current = name
	return nil
}

// ListSessions returns session names in sorted order.
func (m *Manager) ListSessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.sessions))
	for name := range m.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Architecture returns the decoder matching the session's machine.
func (m *Manager) Architecture(name string) (arch.Target, error) {
	m.mu.Lock()
	if name == "" {
		name = m.current
	}
	info, ok := m.sessions[name]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no session named %q", name)
	}
	return arch.Get(info.ArchName)
}

// SessionInfo describes one session for display.
func (m *Manager) SessionInfo(name string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if name == "" {
		name = m.current
	}
	info, ok := m.sessions[name]
	if !ok {
		return nil, fmt.Errorf("no session named %q", name)
	}
	return map[string]any{
		"name":         name,
		"elf_path":     info.Session.ElfPath,
		"machine":      info.Machine,
		"cpu":          info.CPU,
		"architecture": info.ArchName,
		"gdb_port":     info.Session.Qemu.GdbPort(),
		"started":      info.Session.Started(),
		"current":      name == m.current,
	}, nil
}
