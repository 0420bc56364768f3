package network

import (
	"fmt"
	"strings"
)

// InsufficientZonesError means fewer than the required number of distinct
// availability zones were supplied for the isolated tier. A multi-AZ
// database tier requires at least two.
type InsufficientZonesError struct {
	Zones    []string
	Required int
}

func (e InsufficientZonesError) Error() string {
	return fmt.Sprintf("isolated tier requires at least %d distinct availability zones, got [%s]",
		e.Required, strings.Join(e.Zones, ", "))
}

// InvalidCIDRError means the supplied CIDR block cannot be parsed or cannot
// be partitioned into the required subnet blocks.
type InvalidCIDRError struct {
	CIDR   string
	Reason string
}

func (e InvalidCIDRError) Error() string {
	return fmt.Sprintf("invalid network CIDR %q: %s", e.CIDR, e.Reason)
}
