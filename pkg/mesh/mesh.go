package mesh

import (
	"fmt"

	"github.com/telhaus/cirrus/pkg/graph"
)

// openCIDR is the only CIDR peer the mesh will ever declare, and only on
// egress rules created through PermitEgressToInternet.
const openCIDR = "0.0.0.0/0"

// Direction of a traffic rule relative to its owning boundary.
type Direction string

const (
	Ingress Direction = "ingress"
	Egress  Direction = "egress"
)

// Peer identifies the other side of a traffic rule: either another security
// boundary or a CIDR block, never both. The zero Peer is invalid; peers are
// only constructed internally.
type Peer struct {
	boundary *Boundary
	cidr     string
}

// Boundary returns the peer boundary, if the peer is one.
func (p Peer) Boundary() (*Boundary, bool) {
	return p.boundary, p.boundary != nil
}

// CIDR returns the peer CIDR block, if the peer is one.
func (p Peer) CIDR() (string, bool) {
	return p.cidr, p.boundary == nil && p.cidr != ""
}

// Self reports whether the rule peers with its own boundary's members.
func (p Peer) Self() bool {
	return p.boundary == nil && p.cidr == ""
}

// TrafficRule is one declared permission on a boundary.
type TrafficRule struct {
	Direction Direction
	Protocol  string
	FromPort  int
	ToPort    int
	Peer      Peer
	Node      *graph.Node
}

// Boundary represents one security group. Rules attach to it through the
// Composer and are recorded in declaration order.
type Boundary struct {
	name  string
	node  *graph.Node
	rules []TrafficRule
}

// Name returns the boundary's name.
func (b *Boundary) Name() string { return b.name }

// Node returns the underlying security group node.
func (b *Boundary) Node() *graph.Node { return b.node }

// Rules returns a copy of the boundary's declared rules.
func (b *Boundary) Rules() []TrafficRule {
	out := make([]TrafficRule, len(b.rules))
	copy(out, b.rules)
	return out
}

// Composer declares security boundaries and the traffic rules between them.
type Composer struct {
	builder *graph.Builder
}

// NewComposer creates a composer over the given graph builder.
func NewComposer(b *graph.Builder) *Composer {
	return &Composer{builder: b}
}

// NewBoundary declares a security group attached to the given VPC node.
func (c *Composer) NewBoundary(name string, vpc *graph.Node) (*Boundary, error) {
	node, err := c.builder.AddNode("aws_security_group", name, map[string]graph.Value{
		"name":        graph.Str(name),
		"description": graph.Str("managed by cirrus"),
		"vpc_id":      c.builder.Reference(vpc, "id"),
	})
	if err != nil {
		return nil, err
	}
	return &Boundary{name: name, node: node}, nil
}

// Permit declares a single-port flow from one boundary to another: an egress
// rule on from toward to, and a matching ingress rule on to from from.
func (c *Composer) Permit(from, to *Boundary, port int, protocol string) error {
	return c.PermitRange(from, to, port, port, protocol)
}

// PermitRange is Permit over a port range. Both rules carry identical port
// and protocol values; the flow is never widened beyond what the caller
// names.
func (c *Composer) PermitRange(from, to *Boundary, fromPort, toPort int, protocol string) error {
	if err := validatePorts(fromPort, toPort); err != nil {
		return err
	}
	if err := validateProtocol(protocol); err != nil {
		return err
	}

	suffix := portSuffix(fromPort, toPort)
	b := c.builder

	egress, err := b.AddNode("aws_security_group_rule",
		fmt.Sprintf("%s-egress-to-%s-%s", from.name, to.name, suffix),
		map[string]graph.Value{
			"type":                     graph.Str(string(Egress)),
			"security_group_id":        b.Reference(from.node, "id"),
			"source_security_group_id": b.Reference(to.node, "id"),
			"from_port":                graph.Num(fromPort),
			"to_port":                  graph.Num(toPort),
			"protocol":                 graph.Str(protocol),
		})
	if err != nil {
		return err
	}
	ingress, err := b.AddNode("aws_security_group_rule",
		fmt.Sprintf("%s-ingress-from-%s-%s", to.name, from.name, suffix),
		map[string]graph.Value{
			"type":                     graph.Str(string(Ingress)),
			"security_group_id":        b.Reference(to.node, "id"),
			"source_security_group_id": b.Reference(from.node, "id"),
			"from_port":                graph.Num(fromPort),
			"to_port":                  graph.Num(toPort),
			"protocol":                 graph.Str(protocol),
		})
	if err != nil {
		return err
	}

	from.rules = append(from.rules, TrafficRule{
		Direction: Egress,
		Protocol:  protocol,
		FromPort:  fromPort,
		ToPort:    toPort,
		Peer:      Peer{boundary: to},
		Node:      egress,
	})
	to.rules = append(to.rules, TrafficRule{
		Direction: Ingress,
		Protocol:  protocol,
		FromPort:  fromPort,
		ToPort:    toPort,
		Peer:      Peer{boundary: from},
		Node:      ingress,
	})
	return nil
}

// PermitSelf declares a self-referential ingress/egress pair so a boundary's
// own members can reach each other, typically on the full TCP range. Managed
// batch runtimes require this for worker-to-worker traffic.
func (c *Composer) PermitSelf(boundary *Boundary, fromPort, toPort int) error {
	if err := validatePorts(fromPort, toPort); err != nil {
		return err
	}

	suffix := portSuffix(fromPort, toPort)
	b := c.builder
	for _, dir := range []Direction{Ingress, Egress} {
		node, err := b.AddNode("aws_security_group_rule",
			fmt.Sprintf("%s-self-%s-%s", boundary.name, dir, suffix),
			map[string]graph.Value{
				"type":              graph.Str(string(dir)),
				"security_group_id": b.Reference(boundary.node, "id"),
				"self":              graph.Bool(true),
				"from_port":         graph.Num(fromPort),
				"to_port":           graph.Num(toPort),
				"protocol":          graph.Str("tcp"),
			})
		if err != nil {
			return err
		}
		boundary.rules = append(boundary.rules, TrafficRule{
			Direction: dir,
			Protocol:  "tcp",
			FromPort:  fromPort,
			ToPort:    toPort,
			Peer:      Peer{},
			Node:      node,
		})
	}
	return nil
}

// PermitEgressToInternet declares an unconditional egress rule toward the
// open CIDR on the given port. This is the only construction path that
// yields an open-CIDR peer; there is deliberately no ingress counterpart.
func (c *Composer) PermitEgressToInternet(boundary *Boundary, port int) error {
	if err := validatePorts(port, port); err != nil {
		return err
	}

	b := c.builder
	node, err := b.AddNode("aws_security_group_rule",
		fmt.Sprintf("%s-egress-internet-%d", boundary.name, port),
		map[string]graph.Value{
			"type":              graph.Str(string(Egress)),
			"security_group_id": b.Reference(boundary.node, "id"),
			"cidr_blocks":       graph.Strs(openCIDR),
			"from_port":         graph.Num(port),
			"to_port":           graph.Num(port),
			"protocol":          graph.Str("tcp"),
		})
	if err != nil {
		return err
	}
	boundary.rules = append(boundary.rules, TrafficRule{
		Direction: Egress,
		Protocol:  "tcp",
		FromPort:  port,
		ToPort:    port,
		Peer:      Peer{cidr: openCIDR},
		Node:      node,
	})
	return nil
}

func validatePorts(fromPort, toPort int) error {
	if fromPort < 0 || toPort > 65535 || fromPort > toPort {
		return InvalidPortRangeError{FromPort: fromPort, ToPort: toPort}
	}
	return nil
}

func validateProtocol(protocol string) error {
	switch protocol {
	case "tcp", "udp", "icmp":
		return nil
	default:
		return InvalidProtocolError{Protocol: protocol}
	}
}

func portSuffix(fromPort, toPort int) string {
	if fromPort == toPort {
		return fmt.Sprintf("%d", fromPort)
	}
	return fmt.Sprintf("%d-%d", fromPort, toPort)
}
