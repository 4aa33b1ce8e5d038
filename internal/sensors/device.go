package sensors

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// Reader is the capability the navigation service consumes: read one
// raw three-axis sample. The physical magnetometer device driver is
// out of scope for this repository; Reader is the seam it plugs into.
type Reader interface {
	Read(ctx context.Context) (MagneticVector, error)
}

// SerialDeviceConfig configures a line-oriented serial magnetometer
// backend, following the port/baud shape of a flight-controller link.
type SerialDeviceConfig struct {
	Port           string
	BaudRate       int
	ReadTimeout    time.Duration
	SimulationMode bool
}

// SerialDevice reads "bx,by,bz\n" lines from a serial port. It is the
// one concrete Reader this repository ships; anything else (I2C,
// SPI, a vendor SDK) implements the same interface out of tree.
type SerialDevice struct {
	mu     sync.Mutex
	cfg    SerialDeviceConfig
	port   serial.Port
	reader *bufio.Reader
	logger *logrus.Logger
	last   MagneticVector
}

// NewSerialDevice opens the configured serial port. In SimulationMode
// no hardware is touched and Read returns the zero vector until
// SetSimulated is called by a test harness.
func NewSerialDevice(cfg SerialDeviceConfig, logger *logrus.Logger) (*SerialDevice, error) {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 100 * time.Millisecond
	}
	d := &SerialDevice{cfg: cfg, logger: logger}

	if cfg.SimulationMode {
		return d, nil
	}

	mode := &serial.Mode{BaudRate: cfg.BaudRate}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Port, err)
	}
	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	d.port = port
	d.reader = bufio.NewReader(port)
	return d, nil
}

// Read reads and parses the next "bx,by,bz" line from the port. In
// simulation mode it returns whatever SetSimulated last stored.
func (d *SerialDevice) Read(ctx context.Context) (MagneticVector, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cfg.SimulationMode {
		return d.last, nil
	}

	line, err := d.reader.ReadString('\n')
	if err != nil {
		return MagneticVector{}, fmt.Errorf("read serial line: %w", err)
	}
	v, err := parseLine(line)
	if err != nil {
		return MagneticVector{}, err
	}
	d.last = v
	return v, nil
}

// SetSimulated overrides the last-read sample; used in simulation mode
// and by tests that don't have real hardware attached.
func (d *SerialDevice) SetSimulated(v MagneticVector) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = v
}

// Close releases the serial port, if one is open.
func (d *SerialDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.port == nil {
		return nil
	}
	return d.port.Close()
}

func parseLine(line string) (MagneticVector, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) != 3 {
		return MagneticVector{}, fmt.Errorf("malformed sample line %q", line)
	}
	vals := make([]float64, 3)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return MagneticVector{}, fmt.Errorf("parse sample component %q: %w", p, err)
		}
		vals[i] = f
	}
	return MagneticVector{Bx: vals[0], By: vals[1], Bz: vals[2]}, nil
}
