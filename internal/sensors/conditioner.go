package sensors

import (
	"fmt"
	"sync"

	"github.com/ruvnet/quantum-magnetic-navigation/internal/qerr"
)

// Conditioner applies calibration to raw magnetometer samples and
// smooths them over a fixed-size ring of the last W samples. It is
// safe for concurrent use.
type Conditioner struct {
	mu    sync.Mutex
	cal   CalibrationParams
	ring  []MagneticVector
	next  int
	count int
}

// NewConditioner builds a conditioner with window size w (must be >0)
// and the given calibration.
func NewConditioner(w int, cal CalibrationParams) (*Conditioner, error) {
	if w <= 0 {
		return nil, fmt.Errorf("%w: window size must be > 0, got %d", qerr.ErrConfig, w)
	}
	return &Conditioner{
		cal:  cal,
		ring: make([]MagneticVector, w),
	}, nil
}

// Push applies calibration to raw, appends it to the ring, and
// returns the component-wise mean of whatever is currently present
// (up to W samples).
func (c *Conditioner) Push(raw MagneticVector) MagneticVector {
	c.mu.Lock()
	defer c.mu.Unlock()

	calibrated := c.cal.Apply(raw)
	c.ring[c.next] = calibrated
	c.next = (c.next + 1) % len(c.ring)
	if c.count < len(c.ring) {
		c.count++
	}

	var sum MagneticVector
	for i := 0; i < c.count; i++ {
		sum.Bx += c.ring[i].Bx
		sum.By += c.ring[i].By
		sum.Bz += c.ring[i].Bz
	}
	n := float64(c.count)
	return MagneticVector{Bx: sum.Bx / n, By: sum.By / n, Bz: sum.Bz / n}
}

// Reset empties the ring. Calibration parameters are kept.
func (c *Conditioner) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = 0
	c.count = 0
}

// Len reports how many samples are currently present in the window.
func (c *Conditioner) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}
