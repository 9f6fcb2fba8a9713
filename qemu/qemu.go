// Package qemu launches and controls qemu-system instances over QMP
// (the QEMU Machine Protocol), exposing the VM-level operations a debug
// session needs: pause/resume, reset, and snapshots. Execution-level
// control goes through QEMU's gdbstub instead, which the machine is
// started with.
package qemu

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Config describes one QEMU invocation. The defaults match the most
// common Cortex-M3 evaluation board QEMU emulates.
type Config struct {
	QemuPath  string
	Machine   string
	CPU       string
	Memory    string
	GdbPort   int
	QmpPort   int
	ExtraArgs []string
}

// DefaultConfig returns the lm3s6965evb/cortex-m3 baseline.
func DefaultConfig() Config {
	return Config{
		QemuPath: "qemu-system-arm",
		Machine:  "lm3s6965evb",
		CPU:      "cortex-m3",
		Memory:   "64K",
		GdbPort:  1234,
		QmpPort:  4444,
	}
}

// Controller owns one QEMU process and its QMP connection.
type Controller struct {
	cfg Config

	cmd     *exec.Cmd
	qmp     net.Conn
	rdr     *bufio.Reader
	running bool
	elfPath string

	log *logrus.Entry
}

func NewController(cfg Config) *Controller {
	if cfg.QemuPath == "" {
		cfg = DefaultConfig()
	}
	return &Controller{
		cfg: cfg,
		log: logrus.WithField("layer", "qemu"),
	}
}

// commandLine builds the argv for the configured machine with elfPath
// loaded as kernel. With waitForGDB the machine starts frozen (-S)
// until a debugger attaches.
func (c *Controller) commandLine(elfPath string, waitForGDB bool) []string {
	args := []string{
		"-machine", c.cfg.Machine,
		"-cpu", c.cfg.CPU,
		"-m", c.cfg.Memory,
		"-kernel", elfPath,
		"-gdb", fmt.Sprintf("tcp::%d", c.cfg.GdbPort),
		"-qmp", fmt.Sprintf("tcp:localhost:%d,server,wait=off", c.cfg.QmpPort),
		"-nographic",
	}
	if waitForGDB {
		args = append(args, "-S")
	}
	return append(args, c.cfg.ExtraArgs...)
}

// Start launches QEMU and negotiates the QMP handshake.
func (c *Controller) Start(elfPath string, waitForGDB bool) error {
	c.elfPath = elfPath

	cmd := exec.Command(c.cfg.QemuPath, c.commandLine(elfPath, waitForGDB)...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start QEMU at %q: %v (install qemu-system or pass an explicit path)", c.cfg.QemuPath, err)
	}
	c.cmd = cmd

	if err := c.connectQMP(5 * time.Second); err != nil {
		c.Stop()
		return fmt.Errorf("failed to connect QMP: %v", err)
	}
	c.running = true
	c.log.Debugf("started %s machine=%s cpu=%s gdb=%d qmp=%d",
		c.cfg.QemuPath, c.cfg.Machine, c.cfg.CPU, c.cfg.GdbPort, c.cfg.QmpPort)
	return nil
}

// Stop tears the instance down: QMP quit, then SIGTERM, then SIGKILL.
// Every step is attempted regardless of earlier failures.
func (c *Controller) Stop() {
	if c.qmp != nil {
		_, _ = c.Execute("quit", nil)
		_ = c.qmp.Close()
		c.qmp = nil
		c.rdr = nil
	}
	if c.cmd != nil {
		_ = c.cmd.Process.Signal(unix.SIGTERM)
		done := make(chan struct{})
		go func() {
			_ = c.cmd.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			_ = c.cmd.Process.Kill()
			<-done
		}
		c.cmd = nil
	}
	c.running = false
}

// connectQMP dials the QMP socket, reads the greeting, and negotiates
// capabilities. QEMU needs a moment to bind the listener, so the dial
// retries until the deadline.
func (c *Controller) connectQMP(timeout time.Duration) error {
	addr := fmt.Sprintf("localhost:%d", c.cfg.QmpPort)
	deadline := time.Now().Add(timeout)

	var conn net.Conn
	var err error
	for {
		conn, err = net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("dial %s: %v", addr, err)
		}
		time.Sleep(100 * time.Millisecond)
	}
	c.qmp = conn
	c.rdr = bufio.NewReader(conn)

	greeting, err := c.recv(timeout)
	if err != nil {
		return err
	}
	if _, ok := greeting["QMP"]; !ok {
		return fmt.Errorf("invalid QMP greeting: %v", greeting)
	}

	if err := c.sendMsg(map[string]any{"execute": "qmp_capabilities"}); err != nil {
		return err
	}
	resp, err := c.recv(timeout)
	if err != nil {
		return err
	}
	if _, ok := resp["return"]; !ok {
		return fmt.Errorf("QMP capabilities failed: %v", resp)
	}
	return nil
}

func (c *Controller) sendMsg(msg map[string]any) error {
	if c.qmp == nil {
		return fmt.Errorf("QMP not connected")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = c.qmp.Write(append(data, '\n'))
	return err
}

// recv reads one newline-delimited JSON message.
func (c *Controller) recv(timeout time.Duration) (map[string]any, error) {
	if c.qmp == nil {
		return nil, fmt.Errorf("QMP not connected")
	}
	_ = c.qmp.SetReadDeadline(time.Now().Add(timeout))
	defer c.qmp.SetReadDeadline(time.Time{})

	line, err := c.rdr.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("QMP receive: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, fmt.Errorf("bad QMP message %q: %v", strings.TrimSpace(string(line)), err)
	}
	return msg, nil
}

// Execute runs one QMP command and returns the raw response.
func (c *Controller) Execute(command string, arguments map[string]any) (map[string]any, error) {
	msg := map[string]any{"execute": command}
	if arguments != nil {
		msg["arguments"] = arguments
	}
	if err := c.sendMsg(msg); err != nil {
		return nil, err
	}
	return c.recv(5 * time.Second)
}

// Pause freezes the VM. QEMU acknowledges with either a return or a
// STOP event depending on timing.
func (c *Controller) Pause() (bool, error) {
	resp, err := c.Execute("stop", nil)
	if err != nil {
		return false, err
	}
	return hasKey(resp, "return") || hasKey(resp, "event"), nil
}

// Resume unfreezes the VM.
func (c *Controller) Resume() (bool, error) {
	resp, err := c.Execute("cont", nil)
	if err != nil {
		return false, err
	}
	return hasKey(resp, "return") || hasKey(resp, "event"), nil
}

// Reset performs a full system reset.
func (c *Controller) Reset() (bool, error) {
	resp, err := c.Execute("system_reset", nil)
	if err != nil {
		return false, err
	}
	return hasKey(resp, "return"), nil
}

// SaveSnapshot stores VM state under name. Needs a block device with
// snapshot support; bare -kernel setups usually lack one.
func (c *Controller) SaveSnapshot(name string) (bool, error) {
	return c.monitor("savevm " + name)
}

// LoadSnapshot restores VM state saved under name.
func (c *Controller) LoadSnapshot(name string) (bool, error) {
	return c.monitor("loadvm " + name)
}

// DeleteSnapshot removes a stored snapshot.
func (c *Controller) DeleteSnapshot(name string) (bool, error) {
	return c.monitor("delvm " + name)
}

// monitor runs a human-monitor command and reports protocol success.
func (c *Controller) monitor(commandLine string) (bool, error) {
	resp, err := c.Execute("human-monitor-command", map[string]any{"command-line": commandLine})
	if err != nil {
		return false, err
	}
	return !hasKey(resp, "error"), nil
}

// QueryStatus returns QEMU's run-state report.
func (c *Controller) QueryStatus() (map[string]any, error) {
	resp, err := c.Execute("query-status", nil)
	if err != nil {
		return nil, err
	}
	result, _ := resp["return"].(map[string]any)
	return result, nil
}

func (c *Controller) Running() bool   { return c.running }
func (c *Controller) GdbPort() int    { return c.cfg.GdbPort }
func (c *Controller) ElfPath() string { return c.elfPath }

func hasKey(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}
