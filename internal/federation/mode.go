// file: internal/federation/mode.go

package federation

import "fedgate/config"

// ModeGate reports whether the deployment runs in open (development) mode
type ModeGate interface {
	IsOpen() bool
}

// Mode is the ModeGate derived from the configured environment
type Mode struct {
	environment string
}

// NewMode creates the mode for an environment name
func NewMode(environment string) Mode {
	return Mode{environment: environment}
}

// IsOpen is true only in the development environment
func (m Mode) IsOpen() bool {
	return m.environment == config.EnvironmentDevelopment
}

func (m Mode) String() string {
	return m.environment
}
