// Package directory reaches the external driver/vehicle/agent registry.
//
// The registry is a collaborator, never owned here: lookups return display
// fields only and nothing in this repository mutates it. The citation module
// uses it once per issuance to capture the driver's display name.
package directory

import "context"

// Driver holds the display fields of a driver reference.
type Driver struct {
	Ref      string `json:"ref"`
	FullName string `json:"fullName"`
	License  string `json:"license,omitempty"`
}

// Agent holds the display fields of an issuing agent reference.
type Agent struct {
	Ref      string `json:"ref"`
	FullName string `json:"fullName"`
	Badge    string `json:"badge,omitempty"`
}

// Directory is the read-only lookup contract. Implementations return
// sentinel.ErrNotFound for unknown references.
type Directory interface {
	Driver(ctx context.Context, ref string) (*Driver, error)
	Agent(ctx context.Context, ref string) (*Agent, error)
}
