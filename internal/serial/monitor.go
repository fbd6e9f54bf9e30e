package serial

import (
	"io"
	"sync"
)

// Monitor streams data from a serial port. It is used outside flash
// sessions only; esptool needs the port to itself while flashing.
type Monitor struct {
	open     Opener
	port     io.ReadWriteCloser
	portName string
	baudRate int
	mu       sync.Mutex
	running  bool
	dataCh   chan string
	done     chan struct{}
	stopped  chan struct{}
}

// NewMonitor creates a monitor that opens ports with open, or with OpenPort
// when open is nil.
func NewMonitor(open Opener) *Monitor {
	if open == nil {
		open = OpenPort
	}
	return &Monitor{
		open:    open,
		dataCh:  make(chan string, 64),
		done:    make(chan struct{}),
		stopped: closedChan(),
	}
}

// Connect opens a serial port and starts reading from it.
func (m *Monitor) Connect(portName string, baudRate int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		m.disconnectLocked()
	}

	port, err := m.open(portName, baudRate)
	if err != nil {
		return err
	}

	m.port = port
	m.portName = portName
	m.baudRate = baudRate
	m.running = true
	m.done = make(chan struct{})
	m.stopped = make(chan struct{})

	go m.readLoop(port, m.done, m.stopped)
	return nil
}

// Disconnect closes the serial port.
func (m *Monitor) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnectLocked()
}

func (m *Monitor) disconnectLocked() {
	if !m.running {
		return
	}
	m.running = false
	if m.port != nil {
		m.port.Close()
		m.port = nil
	}
	close(m.done)
}

// DataChan returns the channel that receives serial data.
func (m *Monitor) DataChan() <-chan string {
	return m.dataCh
}

// Stopped is closed when the current read loop exits, either after
// Disconnect or because the device went away.
func (m *Monitor) Stopped() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// Connected returns whether the monitor is connected.
func (m *Monitor) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// PortName returns the currently or last connected port.
func (m *Monitor) PortName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.portName
}

func (m *Monitor) readLoop(port io.Reader, done, stopped chan struct{}) {
	defer close(stopped)
	buf := make([]byte, 1024)
	for {
		select {
		case <-done:
			return
		default:
		}

		n, err := port.Read(buf)
		if n > 0 {
			select {
			case m.dataCh <- string(buf[:n]):
			default:
				// Drop data if channel is full
			}
		}
		if err != nil {
			return
		}
	}
}

func closedChan() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}
