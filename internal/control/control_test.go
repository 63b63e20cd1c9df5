package control

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		wantCmd byte
		wantArg string
	}{
		{"b\n", 'b', ""},
		{"s\n", 's', ""},
		{"y hello there\n", 'y', "hello there"},
		{"y  leading space\n", 'y', " leading space"},
		{"q", 'q', ""},
		{"\n", 0, ""},
		{"", 0, ""},
	}
	for _, tt := range tests {
		cmd, arg := ParseCommand(tt.line)
		if cmd != tt.wantCmd || arg != tt.wantArg {
			t.Errorf("ParseCommand(%q) = (%q, %q), want (%q, %q)", tt.line, cmd, arg, tt.wantCmd, tt.wantArg)
		}
	}
}

func TestPaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", dir)

	sp, err := SockPath()
	if err != nil {
		t.Fatalf("SockPath: %v", err)
	}
	if want := filepath.Join(dir, "voicelink", SockName); sp != want {
		t.Errorf("sock path: %q, want %q", sp, want)
	}

	pp, err := PidPath()
	if err != nil {
		t.Fatalf("PidPath: %v", err)
	}
	if want := filepath.Join(dir, "voicelink", PidName); pp != want {
		t.Errorf("pid path: %q, want %q", pp, want)
	}
}

func TestPidFileLifecycle(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	if err := CheckExistingDaemon(); err != nil {
		t.Fatalf("check with no pid file: %v", err)
	}

	if err := CreatePidFile(); err != nil {
		t.Fatalf("create: %v", err)
	}
	pp, _ := PidPath()
	data, err := os.ReadFile(pp)
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	if pid, _ := strconv.Atoi(string(data)); pid != os.Getpid() {
		t.Errorf("pid file holds %s, want %d", data, os.Getpid())
	}

	// our own pid is alive, so a second daemon must be refused
	if err := CheckExistingDaemon(); err == nil {
		t.Error("expected running-daemon error")
	}

	if err := RemovePidFile(); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := CheckExistingDaemon(); err != nil {
		t.Errorf("check after remove: %v", err)
	}
}

func TestCheckExistingDaemon_StalePid(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	pp, _ := PidPath()
	if err := os.MkdirAll(filepath.Dir(pp), 0o700); err != nil {
		t.Fatal(err)
	}
	// garbage in the pid file is treated as stale
	for _, content := range []string{"not-a-pid"} {
		if err := os.WriteFile(pp, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		if err := CheckExistingDaemon(); err != nil {
			t.Errorf("stale pid %q rejected: %v", content, err)
		}
	}
}

func TestSendCommandRoundTrip(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	ln, err := Listen()
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				line, err := bufio.NewReader(c).ReadString('\n')
				if err != nil {
					return
				}
				cmd, arg := ParseCommand(line)
				switch cmd {
				case CmdSay:
					fmt.Fprintf(c, "OK sent %q\n", arg)
				case CmdStatus:
					fmt.Fprint(c, "STATUS status=idle\n")
				default:
					fmt.Fprintf(c, "ERR unknown=%q\n", cmd)
				}
			}(c)
		}
	}()

	resp, err := SendCommand(CmdSay, "hello\nworld")
	if err != nil {
		t.Fatalf("send say: %v", err)
	}
	if !strings.Contains(resp, `"hello world"`) {
		t.Errorf("newline not flattened: %q", resp)
	}

	resp, err = SendCommand(CmdStatus, "")
	if err != nil {
		t.Fatalf("send status: %v", err)
	}
	if !strings.HasPrefix(resp, "STATUS") {
		t.Errorf("status reply: %q", resp)
	}
}

func TestListenReplacesStaleSocket(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	ln, err := Listen()
	if err != nil {
		t.Fatalf("first listen: %v", err)
	}
	ln.Close()

	// socket file left behind must not block the next start
	ln2, err := Listen()
	if err != nil {
		t.Fatalf("second listen: %v", err)
	}
	ln2.Close()
}
