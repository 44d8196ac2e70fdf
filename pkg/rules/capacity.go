package rules

const (
	// DefaultMaxActive is the default global cap on devices transmitting at once.
	DefaultMaxActive = 10
	// MaxPerDevice is the number of automatic transmissions one device may own.
	MaxPerDevice = 1
)

// Capacity enforces the global cap against a live count.
type Capacity struct {
	MaxActive int
}

// NewCapacity returns a cap, falling back to DefaultMaxActive for non-positive values.
func NewCapacity(maxActive int) Capacity {
	if maxActive <= 0 {
		maxActive = DefaultMaxActive
	}

	return Capacity{MaxActive: maxActive}
}

// Check fails when active, the count of other devices already holding a
// slot, leaves no room for one more.
func (c Capacity) Check(active int) error {
	if active >= c.MaxActive {
		return &CapacityError{Active: active, Max: c.MaxActive}
	}

	return nil
}

// CheckDevice fails when the device already holds its slot.
func CheckDevice(deviceActive int) error {
	if deviceActive >= MaxPerDevice {
		return ErrAlreadyActive
	}

	return nil
}
