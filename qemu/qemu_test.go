package qemu

import (
	"bufio"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.QemuPath != "qemu-system-arm" {
		t.Errorf("qemu path = %q", cfg.QemuPath)
	}
	if cfg.Machine != "lm3s6965evb" || cfg.CPU != "cortex-m3" || cfg.Memory != "64K" {
		t.Errorf("machine defaults = %+v", cfg)
	}
	if cfg.GdbPort != 1234 || cfg.QmpPort != 4444 {
		t.Errorf("port defaults = %d/%d", cfg.GdbPort, cfg.QmpPort)
	}
}

func TestCommandLine(t *testing.T) {
	c := NewController(Config{
		QemuPath:  "qemu-system-riscv32",
		Machine:   "virt",
		CPU:       "rv32",
		Memory:    "128M",
		GdbPort:   2345,
		QmpPort:   12345,
		ExtraArgs: []string{"-bios", "none"},
	})

	argv := strings.Join(c.commandLine("/tmp/fw.elf", true), " ")
	for _, want := range []string{
		"-machine virt",
		"-cpu rv32",
		"-m 128M",
		"-kernel /tmp/fw.elf",
		"-gdb tcp::2345",
		"-qmp tcp:localhost:12345,server,wait=off",
		"-nographic",
		"-S",
		"-bios none",
	} {
		if !strings.Contains(argv, want) {
			t.Errorf("argv missing %q: %s", want, argv)
		}
	}

	argv = strings.Join(c.commandLine("/tmp/fw.elf", false), " ")
	if strings.Contains(argv, "-S") {
		t.Errorf("argv should not freeze without waitForGDB: %s", argv)
	}
}

// fakeQMP speaks just enough of the protocol for handshake and command
// round trips: greeting on connect, then one canned response per line.
func fakeQMP(t *testing.T, responses map[string]string) (int, chan []string) {
	t.Helper()
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	seen := make(chan []string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte(`{"QMP":{"version":{},"capabilities":[]}}` + "\n"))

		var commands []string
		rdr := bufio.NewReader(conn)
		for {
			line, err := rdr.ReadBytes('\n')
			if err != nil {
				break
			}
			var msg map[string]any
			if json.Unmarshal(line, &msg) != nil {
				break
			}
			cmd, _ := msg["execute"].(string)
			commands = append(commands, cmd)
			resp, ok := responses[cmd]
			if !ok {
				resp = `{"return":{}}`
			}
			conn.Write([]byte(resp + "\n"))
			if cmd == "quit" {
				break
			}
		}
		seen <- commands
	}()

	return ln.Addr().(*net.TCPAddr).Port, seen
}

func connectedController(t *testing.T, responses map[string]string) (*Controller, chan []string) {
	t.Helper()
	port, seen := fakeQMP(t, responses)
	c := NewController(Config{QemuPath: "qemu-system-arm", QmpPort: port})
	if err := c.connectQMP(2 * time.Second); err != nil {
		t.Fatalf("connectQMP: %v", err)
	}
	t.Cleanup(func() {
		if c.qmp != nil {
			c.qmp.Close()
		}
	})
	return c, seen
}

func TestQMPHandshakeAndPause(t *testing.T) {
	c, _ := connectedController(t, nil)

	ok, err := c.Pause()
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if !ok {
		t.Error("Pause not acknowledged")
	}

	ok, err = c.Resume()
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !ok {
		t.Error("Resume not acknowledged")
	}
}

func TestQMPPauseEventAck(t *testing.T) {
	c, _ := connectedController(t, map[string]string{
		"stop": `{"event":"STOP","timestamp":{}}`,
	})
	ok, err := c.Pause()
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if !ok {
		t.Error("STOP event should count as acknowledgement")
	}
}

func TestQMPSnapshots(t *testing.T) {
	c, seen := connectedController(t, map[string]string{
		"human-monitor-command": `{"return":""}`,
	})

	if ok, err := c.SaveSnapshot("before_crash"); err != nil || !ok {
		t.Errorf("SaveSnapshot: ok=%v err=%v", ok, err)
	}
	if ok, err := c.LoadSnapshot("before_crash"); err != nil || !ok {
		t.Errorf("LoadSnapshot: ok=%v err=%v", ok, err)
	}
	c.qmp.Close()
	c.qmp = nil

	commands := <-seen
	monitors := 0
	for _, cmd := range commands {
		if cmd == "human-monitor-command" {
			monitors++
		}
	}
	if monitors != 2 {
		t.Errorf("monitor commands = %d, want 2 (got %v)", monitors, commands)
	}
}

func TestQMPSnapshotError(t *testing.T) {
	c, _ := connectedController(t, map[string]string{
		"human-monitor-command": `{"error":{"class":"GenericError","desc":"no block device"}}`,
	})
	ok, err := c.SaveSnapshot("x")
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if ok {
		t.Error("error response should report failure, not success")
	}
}

func TestQMPQueryStatus(t *testing.T) {
	c, _ := connectedController(t, map[string]string{
		"query-status": `{"return":{"status":"paused","running":false}}`,
	})
	status, err := c.QueryStatus()
	if err != nil {
		t.Fatal(err)
	}
	if status["status"] != "paused" {
		t.Errorf("status = %v", status)
	}
}

func TestQMPBadGreeting(t *testing.T) {
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Write([]byte(`{"hello":"world"}` + "\n"))
		conn.Close()
	}()

	c := NewController(Config{QemuPath: "qemu-system-arm", QmpPort: ln.Addr().(*net.TCPAddr).Port})
	if err := c.connectQMP(2 * time.Second); err == nil {
		t.Error("expected greeting validation to fail")
	}
}
