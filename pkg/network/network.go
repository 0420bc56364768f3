package network

import (
	"fmt"
	"net"

	"github.com/apparentlymart/go-cidr/cidr"

	"github.com/telhaus/cirrus/pkg/graph"
)

// Tier is a subnet's network-reachability class.
type Tier string

const (
	// TierIsolated subnets have no route to the internet in either direction.
	TierIsolated Tier = "isolated"

	// TierPrivate subnets egress through a NAT gateway but accept no inbound
	// traffic from the internet.
	TierPrivate Tier = "private"

	// TierPublic subnets route through an internet gateway.
	TierPublic Tier = "public"
)

// minIsolatedZones is the minimum number of distinct availability zones for
// the isolated tier; a multi-AZ database cluster needs at least two.
const minIsolatedZones = 2

// subnetPrefix is the prefix length each subnet is carved to.
const subnetPrefix = 24

// openCIDR is the all-traffic destination used for default routes.
const openCIDR = "0.0.0.0/0"

// Subnet is one declared subnet together with its routing table.
type Subnet struct {
	Tier       Tier
	Zone       string
	CIDR       string
	Node       *graph.Node
	RouteTable *graph.Node
}

// RouteRule records one route declared on a routing table. Routes tracks
// them so callers can verify the tier invariants without walking raw nodes.
type RouteRule struct {
	Table       *graph.Node
	Destination string
	TargetKind  string
	Node        *graph.Node
}

// Topology is the composed tiered network.
type Topology struct {
	VPC             *graph.Node
	InternetGateway *graph.Node
	NATGateway      *graph.Node
	Isolated        []Subnet
	Private         Subnet
	Public          Subnet
	Routes          []RouteRule

	// Zones is the deduplicated zone list the topology was built over, in
	// input order. Callers placing zone-spanning resources use this rather
	// than the raw configuration value.
	Zones []string

	builder *graph.Builder
}

// BuildNetwork declares a VPC and partitions its CIDR into disjoint subnet
// blocks: one isolated subnet per supplied zone, one private subnet and one
// public subnet. Fewer than two distinct zones fails with
// InsufficientZonesError; a CIDR that cannot be carved into enough /24
// blocks fails with InvalidCIDRError. Failures are structural; nothing is
// retried and no partial topology is returned.
func BuildNetwork(b *graph.Builder, name, cidrBlock string, zones []string) (*Topology, error) {
	distinct := distinctZones(zones)
	if len(distinct) < minIsolatedZones {
		return nil, InsufficientZonesError{Zones: zones, Required: minIsolatedZones}
	}

	blocks, err := partition(cidrBlock, len(distinct)+2)
	if err != nil {
		return nil, err
	}

	vpc, err := b.AddNode("aws_vpc", name, map[string]graph.Value{
		"cidr_block":           graph.Str(cidrBlock),
		"enable_dns_support":   graph.Bool(true),
		"enable_dns_hostnames": graph.Bool(true),
	})
	if err != nil {
		return nil, err
	}

	topo := &Topology{VPC: vpc, Zones: distinct, builder: b}

	topo.InternetGateway, err = b.AddNode("aws_internet_gateway", name+"-igw", map[string]graph.Value{
		"vpc_id": b.Reference(vpc, "id"),
	})
	if err != nil {
		return nil, err
	}

	next := 0
	take := func() string {
		block := blocks[next]
		next++
		return block
	}

	// Public first: the NAT gateway has to live somewhere.
	topo.Public, err = topo.addSubnet(name+"-public", TierPublic, distinct[0], take())
	if err != nil {
		return nil, err
	}
	if err := topo.addDefaultRoute(name+"-public", topo.Public, "aws_internet_gateway", "gateway_id", topo.InternetGateway); err != nil {
		return nil, err
	}

	eip, err := b.AddNode("aws_eip", name+"-nat-eip", map[string]graph.Value{
		"domain": graph.Str("vpc"),
	})
	if err != nil {
		return nil, err
	}
	topo.NATGateway, err = b.AddNode("aws_nat_gateway", name+"-nat", map[string]graph.Value{
		"subnet_id":     b.Reference(topo.Public.Node, "id"),
		"allocation_id": b.Reference(eip, "id"),
	})
	if err != nil {
		return nil, err
	}

	topo.Private, err = topo.addSubnet(name+"-private", TierPrivate, distinct[0], take())
	if err != nil {
		return nil, err
	}
	if err := topo.addDefaultRoute(name+"-private", topo.Private, "aws_nat_gateway", "nat_gateway_id", topo.NATGateway); err != nil {
		return nil, err
	}

	// Isolated subnets get a route table but no default route.
	for _, zone := range distinct {
		sub, err := topo.addSubnet(name+"-isolated-"+zone, TierIsolated, zone, take())
		if err != nil {
			return nil, err
		}
		topo.Isolated = append(topo.Isolated, sub)
	}

	return topo, nil
}

// IsolatedSubnetIDs returns the deferred subnet IDs of the isolated tier,
// in zone order. Suitable for a database subnet group.
func (t *Topology) IsolatedSubnetIDs() graph.List {
	items := make([]graph.Value, len(t.Isolated))
	for i, sub := range t.Isolated {
		items[i] = t.builder.Reference(sub.Node, "id")
	}
	return graph.List{Items: items}
}

// Subnets returns every declared subnet across all tiers.
func (t *Topology) Subnets() []Subnet {
	subnets := make([]Subnet, 0, len(t.Isolated)+2)
	subnets = append(subnets, t.Public, t.Private)
	subnets = append(subnets, t.Isolated...)
	return subnets
}

// DefaultRoutes returns the route rules declared for the given table.
func (t *Topology) DefaultRoutes(table *graph.Node) []RouteRule {
	var rules []RouteRule
	for _, r := range t.Routes {
		if r.Table == table && r.Destination == openCIDR {
			rules = append(rules, r)
		}
	}
	return rules
}

func (t *Topology) addSubnet(name string, tier Tier, zone, block string) (Subnet, error) {
	b := t.builder
	props := map[string]graph.Value{
		"vpc_id":            b.Reference(t.VPC, "id"),
		"cidr_block":        graph.Str(block),
		"availability_zone": graph.Str(zone),
	}
	if tier == TierPublic {
		props["map_public_ip_on_launch"] = graph.Bool(true)
	}
	node, err := b.AddNode("aws_subnet", name, props)
	if err != nil {
		return Subnet{}, err
	}

	table, err := b.AddNode("aws_route_table", name+"-rt", map[string]graph.Value{
		"vpc_id": b.Reference(t.VPC, "id"),
	})
	if err != nil {
		return Subnet{}, err
	}
	if _, err := b.AddNode("aws_route_table_association", name+"-rta", map[string]graph.Value{
		"subnet_id":      b.Reference(node, "id"),
		"route_table_id": b.Reference(table, "id"),
	}); err != nil {
		return Subnet{}, err
	}

	return Subnet{Tier: tier, Zone: zone, CIDR: block, Node: node, RouteTable: table}, nil
}

func (t *Topology) addDefaultRoute(name string, sub Subnet, targetKind, targetAttr string, target *graph.Node) error {
	b := t.builder
	node, err := b.AddNode("aws_route", name+"-default", map[string]graph.Value{
		"route_table_id":         b.Reference(sub.RouteTable, "id"),
		"destination_cidr_block": graph.Str(openCIDR),
		targetAttr:               b.Reference(target, "id"),
	})
	if err != nil {
		return err
	}
	t.Routes = append(t.Routes, RouteRule{
		Table:       sub.RouteTable,
		Destination: openCIDR,
		TargetKind:  targetKind,
		Node:        node,
	})
	return nil
}

// partition carves the base CIDR into count disjoint /24 blocks.
func partition(cidrBlock string, count int) ([]string, error) {
	_, base, err := net.ParseCIDR(cidrBlock)
	if err != nil {
		return nil, InvalidCIDRError{CIDR: cidrBlock, Reason: err.Error()}
	}
	if base.IP.To4() == nil {
		return nil, InvalidCIDRError{CIDR: cidrBlock, Reason: "only IPv4 blocks are supported"}
	}

	ones, _ := base.Mask.Size()
	newBits := subnetPrefix - ones
	if newBits <= 0 {
		return nil, InvalidCIDRError{
			CIDR:   cidrBlock,
			Reason: fmt.Sprintf("prefix must be shorter than /%d to carve /%d subnets", subnetPrefix, subnetPrefix),
		}
	}
	if count > 1<<newBits {
		return nil, InvalidCIDRError{
			CIDR:   cidrBlock,
			Reason: fmt.Sprintf("cannot carve %d /%d subnets out of a /%d block", count, subnetPrefix, ones),
		}
	}

	blocks := make([]string, count)
	for i := 0; i < count; i++ {
		sub, err := cidr.Subnet(base, newBits, i)
		if err != nil {
			return nil, InvalidCIDRError{CIDR: cidrBlock, Reason: err.Error()}
		}
		blocks[i] = sub.String()
	}
	return blocks, nil
}

// distinctZones preserves order while dropping duplicates.
func distinctZones(zones []string) []string {
	seen := make(map[string]bool, len(zones))
	var out []string
	for _, z := range zones {
		if z == "" || seen[z] {
			continue
		}
		seen[z] = true
		out = append(out, z)
	}
	return out
}
