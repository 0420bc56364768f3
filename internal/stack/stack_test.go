package stack_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/telhaus/cirrus/internal/config"
	"github.com/telhaus/cirrus/internal/stack"
	"github.com/telhaus/cirrus/pkg/engine"
	"github.com/telhaus/cirrus/pkg/graph"
	"github.com/telhaus/cirrus/pkg/mesh"
	"github.com/telhaus/cirrus/pkg/network"
)

func devEnvironment() config.Environment {
	return config.Environment{
		Name:   "dev",
		Region: "eu-central-1",
		CIDR:   "10.0.0.0/16",
		Zones:  []string{"eu-central-1a", "eu-central-1b"},
		Database: config.Database{
			InstanceClass:  "db.t3.medium",
			Instances:      2,
			EngineVersion:  "8.0.mysql_aurora.3.05.2",
			DatabaseName:   "platform",
			Username:       "admin",
			PasswordLength: 41,
		},
		Job: config.Job{
			Name:           "generate-data",
			ScriptLocation: "s3://dev-artifacts/jobs/generate_data_to_rds.py",
			GlueVersion:    "4.0",
			MaxCapacity:    1.0,
		},
	}
}

var _ = Describe("Composing an environment", func() {
	var build *stack.Build

	BeforeEach(func() {
		var err error
		build, err = stack.Compose(devEnvironment())
		Expect(err).NotTo(HaveOccurred())
	})

	It("finalizes into an acyclic, topologically ordered graph", func() {
		position := map[string]int{}
		for i, n := range build.Graph.Nodes {
			position[n.LogicalName] = i
		}
		for _, e := range build.Graph.Edges {
			Expect(position[e.From]).To(BeNumerically("<", position[e.To]),
				"edge %s -> %s must respect topological order", e.From, e.To)
		}
	})

	It("declares the tiered network with one isolated subnet per zone", func() {
		Expect(build.Topology.Isolated).To(HaveLen(2))
		Expect(build.Topology.Private.Tier).To(Equal(network.TierPrivate))
		Expect(build.Topology.Public.Tier).To(Equal(network.TierPublic))

		for _, sub := range build.Topology.Isolated {
			Expect(build.Topology.DefaultRoutes(sub.RouteTable)).To(BeEmpty(),
				"isolated subnet %s must not route to the internet", sub.Zone)
		}
	})

	It("wires the job to the database on the listener port only", func() {
		var dbIngress []mesh.TrafficRule
		for _, r := range build.Database.Rules() {
			if r.Direction == mesh.Ingress {
				dbIngress = append(dbIngress, r)
			}
		}
		Expect(dbIngress).To(HaveLen(1))
		Expect(dbIngress[0].FromPort).To(Equal(3306))
		Expect(dbIngress[0].ToPort).To(Equal(3306))
		peer, ok := dbIngress[0].Peer.Boundary()
		Expect(ok).To(BeTrue())
		Expect(peer).To(BeIdenticalTo(build.Job))
	})

	It("never declares an ingress rule from an open CIDR", func() {
		for _, boundary := range []*mesh.Boundary{build.Database, build.Job} {
			for _, r := range boundary.Rules() {
				if _, isCIDR := r.Peer.CIDR(); isCIDR {
					Expect(r.Direction).To(Equal(mesh.Egress))
				}
			}
		}
	})

	It("stores the admin credential only as a deferred reference", func() {
		version := build.Admin.Version()
		v, ok := version.Property("secret_string")
		Expect(ok).To(BeTrue())
		payload, ok := v.(graph.Map)
		Expect(ok).To(BeTrue())

		password, ok := payload.Entries["password"].(graph.Deferred)
		Expect(ok).To(BeTrue(), "password must be deferred, not literal")
		Expect(password.Source.Kind).To(Equal("credential"))

		host, ok := payload.Entries["host"].(graph.Deferred)
		Expect(ok).To(BeTrue(), "host is unknown until the cluster exists")
		Expect(host.Source).To(BeIdenticalTo(build.Cluster))
	})

	It("keeps the cluster's master password out of literal properties", func() {
		v, ok := build.Cluster.Property("master_password")
		Expect(ok).To(BeTrue())
		Expect(v).To(BeAssignableToTypeOf(graph.Deferred{}))
	})

	It("hands the batch job the secret by reference", func() {
		v, ok := build.GlueJob.Property("default_arguments")
		Expect(ok).To(BeTrue())
		args, ok := v.(graph.Map)
		Expect(ok).To(BeTrue())

		arn, ok := args.Entries["--secret_arn"].(graph.Deferred)
		Expect(ok).To(BeTrue())
		Expect(arn.Source).To(BeIdenticalTo(build.Admin.Node()))
	})

	It("materializes end to end against the fake engine", func() {
		materialized, err := (&engine.Fake{}).Materialize(context.Background(), build.Graph)
		Expect(err).NotTo(HaveOccurred())

		for _, n := range build.Graph.Nodes {
			for name, v := range n.Properties {
				_, err := materialized.Resolve(v)
				Expect(err).NotTo(HaveOccurred(),
					"property %s of %s must resolve transitively", name, n.Address())
			}
		}

		url, err := materialized.Resolve(mustProperty(build.Graph, "dev-jdbc", "connection_properties"))
		Expect(err).NotTo(HaveOccurred())
		props, ok := url.(map[string]any)
		Expect(ok).To(BeTrue())
		Expect(props["JDBC_CONNECTION_URL"]).To(ContainSubstring("jdbc:mysql://dev-db.cluster.fake.internal:3306/platform"))
	})

	It("produces identical hashes across passes and fresh pass IDs", func() {
		second, err := stack.Compose(devEnvironment())
		Expect(err).NotTo(HaveOccurred())

		// Regenerated secrets only change sealed material, which is excluded
		// from the hash; the declarations themselves are identical.
		Expect(second.Graph.ComputeHash()).To(Equal(build.Graph.ComputeHash()))
		Expect(second.Graph.Metadata.PassID).NotTo(Equal(build.Graph.Metadata.PassID))
	})

	It("spans the cluster over distinct availability zones only", func() {
		env := devEnvironment()
		env.Zones = []string{"eu-central-1a", "eu-central-1b", "eu-central-1b"}

		deduped, err := stack.Compose(env)
		Expect(err).NotTo(HaveOccurred())

		v, ok := deduped.Cluster.Property("availability_zones")
		Expect(ok).To(BeTrue())
		zones, ok := v.(graph.List)
		Expect(ok).To(BeTrue())
		Expect(zones.Items).To(HaveLen(2))
	})
})

var _ = Describe("Composition failures", func() {
	It("rejects a single-zone environment", func() {
		env := devEnvironment()
		env.Zones = []string{"eu-central-1a"}

		_, err := stack.Compose(env)
		Expect(err).To(HaveOccurred())
		var insufficient network.InsufficientZonesError
		Expect(errors.As(err, &insufficient)).To(BeTrue())
	})

	It("rejects a weak password length", func() {
		env := devEnvironment()
		env.Database.PasswordLength = 4

		_, err := stack.Compose(env)
		Expect(err).To(HaveOccurred())
	})

	It("rejects an uncarvable network block", func() {
		env := devEnvironment()
		env.CIDR = "10.0.0.0/24"

		_, err := stack.Compose(env)
		var invalid network.InvalidCIDRError
		Expect(errors.As(err, &invalid)).To(BeTrue())
	})
})

func mustProperty(g *graph.Graph, logicalName, property string) graph.Value {
	n, ok := g.Node(logicalName)
	ExpectWithOffset(1, ok).To(BeTrue(), "node %s missing", logicalName)
	v, ok := n.Property(property)
	ExpectWithOffset(1, ok).To(BeTrue(), "property %s missing on %s", property, logicalName)
	return v
}
