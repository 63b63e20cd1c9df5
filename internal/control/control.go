// Package control is the daemon's command channel: a line protocol over a
// unix socket plus a pid file guarding against double starts.
package control

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const SockName = "control.sock"
const PidName = "voicelink.pid"
const ProtoVer = "0.1"

// Single-letter commands accepted by the daemon.
const (
	CmdBegin   = 'b' // start a realtime session
	CmdEnd     = 'e' // stop the current session
	CmdStatus  = 's'
	CmdSay     = 'y' // inject a text turn: "y <text>"
	CmdVersion = 'v'
	CmdQuit    = 'q'
)

// ~/.cache/voicelink/control.sock
func SockPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	vd := filepath.Join(dir, "voicelink")
	return filepath.Join(vd, SockName), nil
}

// ~/.cache/voicelink/voicelink.pid
func PidPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	vd := filepath.Join(dir, "voicelink")
	return filepath.Join(vd, PidName), nil
}

func Listen() (net.Listener, error) {
	sp, err := SockPath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(sp), 0o700); err != nil {
		return nil, err
	}
	_ = os.Remove(sp) // stale socket from last run
	return net.Listen("unix", sp)
}

func Dial() (net.Conn, error) {
	sp, err := SockPath()
	if err != nil {
		return nil, err
	}
	return net.Dial("unix", sp)
}

// SendCommand sends a single command line and returns the daemon's reply.
// arg may be empty; newlines in arg are flattened so the wire format stays
// one line per command.
func SendCommand(cmd byte, arg string) (string, error) {
	c, err := Dial()
	if err != nil {
		return "", err
	}
	defer c.Close()

	line := string(cmd)
	if arg != "" {
		line += " " + strings.ReplaceAll(arg, "\n", " ")
	}
	if _, err := fmt.Fprintf(c, "%s\n", line); err != nil {
		return "", err
	}

	resp, err := bufio.NewReader(c).ReadString('\n')
	return resp, err
}

// ParseCommand splits a received line into the command byte and its
// argument.
func ParseCommand(line string) (byte, string) {
	line = strings.TrimRight(line, "\n")
	if line == "" {
		return 0, ""
	}
	cmd := line[0]
	arg := strings.TrimPrefix(line[1:], " ")
	return cmd, arg
}

func CheckExistingDaemon() error {
	pidPath, err := PidPath()
	if err != nil {
		return err
	}

	pidData, err := os.ReadFile(pidPath)
	if os.IsNotExist(err) {
		return nil // no existing daemon
	}
	if err != nil {
		return err
	}

	pid, err := strconv.Atoi(string(pidData))
	if err != nil {
		return nil // invalid pid file, assume stale
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}

	// Signal 0 probes liveness without touching the process
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return nil // process not alive, stale pid file
	}

	return fmt.Errorf("daemon already running with PID %d", pid)
}

func CreatePidFile() error {
	pidPath, err := PidPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(pidPath), 0o700); err != nil {
		return err
	}

	return os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o600)
}

func RemovePidFile() error {
	pidPath, err := PidPath()
	if err != nil {
		return err
	}
	return os.Remove(pidPath)
}
