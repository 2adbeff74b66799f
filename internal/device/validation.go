package device

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const maxNameLength = 100

// entityIDRegex matches hub entity IDs of the form domain.object_id.
var entityIDRegex = regexp.MustCompile(`^[a-z_]+\.[a-z0-9_]+$`)

// ValidateDevice checks a device before it is persisted and returns the
// first problem found. Outlets without any control path are accepted; the
// control loop reports them as configuration errors.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if err := ValidateKind(d.Kind); err != nil {
		return err
	}
	for _, id := range []*string{d.HubEntityID, d.HumidityEntityID} {
		if id == nil {
			continue
		}
		if err := ValidateEntityID(*id); err != nil {
			return err
		}
	}
	if d.HumidityEntityID != nil && d.Kind != KindSensor {
		return fmt.Errorf("%w: humidity entity is only valid on sensors", ErrInvalidDevice)
	}
	if d.Address != nil {
		if err := ValidateAddress(*d.Address); err != nil {
			return err
		}
	}
	return nil
}

// ValidateName checks the display name.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateKind checks the device kind is recognised.
func ValidateKind(k Kind) error {
	for _, valid := range AllKinds() {
		if k == valid {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidKind, k)
}

// ValidateEntityID checks a hub entity ID such as "sensor.fermenter_temp".
func ValidateEntityID(id string) error {
	if !entityIDRegex.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidEntityID, id)
	}
	return nil
}

// ValidateAddress checks a direct-control address. It must be a bare host
// or host:port with no scheme or path.
func ValidateAddress(addr string) error {
	if addr == "" || strings.ContainsAny(addr, "/?# ") {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}

	host := addr
	if strings.Contains(addr, ":") {
		h, port, err := net.SplitHostPort(addr)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			return fmt.Errorf("%w: port %q", ErrInvalidAddress, port)
		}
		host = h
	}
	if host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidAddress)
	}
	return nil
}

// GenerateID returns a new random device ID.
func GenerateID() string {
	return uuid.New().String()
}
