package device

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Validation constants.
const (
	maxNameLength = 100
	maxKeyLength  = 64
	maxIDLength   = 128
)

var (
	addressRegex  = regexp.MustCompile(`^([0-9A-F]{2}:){5}[0-9A-F]{2}$`)
	keyRegex      = regexp.MustCompile(`^[a-z0-9]+(?:_[a-z0-9]+)*$`)
	entityIDRegex = regexp.MustCompile(`^[a-z_]+\.[a-z0-9_]+$`)
)

// validHealthStatus is built once for O(1) lookups.
var validHealthStatus = func() map[HealthStatus]struct{} {
	m := make(map[HealthStatus]struct{}, len(AllHealthStatuses()))
	for _, s := range AllHealthStatuses() {
		m[s] = struct{}{}
	}
	return m
}()

// ValidateDevice checks a device before it is persisted.
func ValidateDevice(d *Device) error {
	if d == nil {
		return fmt.Errorf("%w: nil device", ErrInvalidDevice)
	}
	if err := ValidateAddress(d.ID); err != nil {
		return err
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if len(d.DeviceID) > maxIDLength {
		return fmt.Errorf("%w: device_id exceeds %d characters", ErrInvalidDevice, maxIDLength)
	}
	if d.HealthStatus != "" {
		if err := ValidateHealthStatus(d.HealthStatus); err != nil {
			return err
		}
	}
	return nil
}

// ValidateEntity checks an entity before it is persisted.
func ValidateEntity(e *Entity) error {
	if e == nil {
		return fmt.Errorf("%w: nil entity", ErrInvalidEntity)
	}
	if e.UniqueID == "" || len(e.UniqueID) > maxIDLength {
		return fmt.Errorf("%w: unique_id must be 1-%d characters", ErrInvalidEntity, maxIDLength)
	}
	if !entityIDRegex.MatchString(e.EntityID) {
		return fmt.Errorf("%w: entity_id %q must look like domain.object_id", ErrInvalidEntity, e.EntityID)
	}
	if err := ValidateAddress(e.DeviceID); err != nil {
		return err
	}
	return ValidateKey(e.Key)
}

// ValidateAddress checks for a normalised BLE address: six upper-case hex
// octets separated by colons.
func ValidateAddress(address string) error {
	if !addressRegex.MatchString(address) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return nil
}

// ValidateName checks that a name is present and not too long.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateKey checks an entity key such as "battery" or "temp_current".
func ValidateKey(key string) error {
	if len(key) > maxKeyLength || !keyRegex.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// ValidateHealthStatus checks that status is a known value.
func ValidateHealthStatus(status HealthStatus) error {
	if _, ok := validHealthStatus[status]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidHealthStatus, status)
	}
	return nil
}
