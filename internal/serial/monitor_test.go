package serial

import (
	"errors"
	"io"
	"testing"
	"time"
)

type pipePort struct {
	r *io.PipeReader
}

func (p *pipePort) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipePort) Write(b []byte) (int, error) { return len(b), nil }
func (p *pipePort) Close() error                { return p.r.Close() }

func TestMonitorStreamsData(t *testing.T) {
	r, w := io.Pipe()
	port := &pipePort{r: r}
	var gotName string
	var gotBaud int
	m := NewMonitor(func(name string, baud int) (io.ReadWriteCloser, error) {
		gotName, gotBaud = name, baud
		return port, nil
	})

	if err := m.Connect("/dev/ttyUSB0", 115200); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if gotName != "/dev/ttyUSB0" || gotBaud != 115200 {
		t.Fatalf("unexpected open args %s@%d", gotName, gotBaud)
	}
	if !m.Connected() {
		t.Fatal("expected connected")
	}

	go w.Write([]byte("rst:0x1 (POWERON_RESET)"))

	select {
	case data := <-m.DataChan():
		if data != "rst:0x1 (POWERON_RESET)" {
			t.Fatalf("unexpected data %q", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for data")
	}

	m.Disconnect()
	if m.Connected() {
		t.Fatal("expected disconnected")
	}
	select {
	case <-m.Stopped():
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not stop after Disconnect")
	}
}

func TestMonitorConnectError(t *testing.T) {
	m := NewMonitor(func(string, int) (io.ReadWriteCloser, error) {
		return nil, errors.New("permission denied")
	})
	if err := m.Connect("COM3", 115200); err == nil {
		t.Fatal("expected error")
	}
	if m.Connected() {
		t.Fatal("should not be connected")
	}
}
