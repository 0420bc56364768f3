package mesh

import "fmt"

// InvalidPortRangeError means the supplied port range is out of bounds or
// inverted.
type InvalidPortRangeError struct {
	FromPort int
	ToPort   int
}

func (e InvalidPortRangeError) Error() string {
	return fmt.Sprintf("invalid port range %d-%d", e.FromPort, e.ToPort)
}

// InvalidProtocolError means the supplied protocol is not one the mesh
// understands.
type InvalidProtocolError struct {
	Protocol string
}

func (e InvalidProtocolError) Error() string {
	return fmt.Sprintf("invalid protocol %q", e.Protocol)
}
