// Package stack is the composition root: it orders the topology builder,
// the security mesh composer and the secret lifecycle manager into one
// acyclic resource graph describing a complete environment, ready to hand
// to the provisioning engine.
package stack

import (
	"fmt"

	"github.com/telhaus/cirrus/internal/config"
	"github.com/telhaus/cirrus/pkg/graph"
	"github.com/telhaus/cirrus/pkg/mesh"
	"github.com/telhaus/cirrus/pkg/network"
	"github.com/telhaus/cirrus/pkg/secrets"
)

// databasePort is the MySQL-compatible listener port of the cluster.
const databasePort = 3306

// glueServiceRolePolicy is the managed policy the batch job role needs.
const glueServiceRolePolicy = "arn:aws:iam::aws:policy/service-role/AWSGlueServiceRole"

// Build is the composed environment: the finalized graph plus the typed
// handles tests and callers use to inspect it.
type Build struct {
	Graph    *graph.Graph
	Topology *network.Topology
	Database *mesh.Boundary
	Job      *mesh.Boundary
	Admin    *secrets.Record
	Cluster  *graph.Node
	GlueJob  *graph.Node
}

// Compose declares the whole environment for the given configuration and
// finalizes it. Composition is single-threaded and side-effect-free; it
// either returns a finalized acyclic graph or fails with a structural or
// validation error and no partial result.
func Compose(env config.Environment) (*Build, error) {
	b := graph.NewBuilder(env.Name)

	topo, err := network.BuildNetwork(b, env.Name, env.CIDR, env.Zones)
	if err != nil {
		return nil, fmt.Errorf("composing network: %w", err)
	}

	composer := mesh.NewComposer(b)
	database, err := composer.NewBoundary(env.Name+"-database", topo.VPC)
	if err != nil {
		return nil, err
	}
	job, err := composer.NewBoundary(env.Name+"-job", topo.VPC)
	if err != nil {
		return nil, err
	}

	// The job reaches the cluster on its listener port and nothing else
	// reaches the cluster at all. Managed batch workers additionally need
	// self-traffic on the full TCP range and TLS egress for artifact pulls.
	if err := composer.Permit(job, database, databasePort, "tcp"); err != nil {
		return nil, err
	}
	if err := composer.PermitSelf(job, 0, 65535); err != nil {
		return nil, err
	}
	if err := composer.PermitEgressToInternet(job, 443); err != nil {
		return nil, err
	}

	manager := secrets.NewManager(b)
	cred, err := manager.IssueCredential(env.Name+"-admin-password", env.Database.PasswordLength, secrets.CharsetAlphanumeric)
	if err != nil {
		return nil, fmt.Errorf("issuing admin credential: %w", err)
	}

	cluster, err := composeDatabase(b, env, topo, database, cred)
	if err != nil {
		return nil, fmt.Errorf("composing database: %w", err)
	}

	admin, err := manager.StoreSecret(env.Name+"-admin", map[string]graph.Value{
		"username": graph.Str(env.Database.Username),
		"password": cred.Ref(),
		"host":     b.Reference(cluster, "endpoint"),
		"port":     graph.Num(databasePort),
		"dbname":   graph.Str(env.Database.DatabaseName),
	})
	if err != nil {
		return nil, fmt.Errorf("storing admin secret: %w", err)
	}

	glueJob, err := composeJob(b, env, topo, job, cluster, admin)
	if err != nil {
		return nil, fmt.Errorf("composing batch job: %w", err)
	}

	g, err := b.Finalize()
	if err != nil {
		return nil, err
	}

	return &Build{
		Graph:    g,
		Topology: topo,
		Database: database,
		Job:      job,
		Admin:    admin,
		Cluster:  cluster,
		GlueJob:  glueJob,
	}, nil
}

func composeDatabase(b *graph.Builder, env config.Environment, topo *network.Topology, boundary *mesh.Boundary, cred *secrets.Credential) (*graph.Node, error) {
	group, err := b.AddNode("aws_db_subnet_group", env.Name+"-db-subnets", map[string]graph.Value{
		"name":       graph.Str(env.Name + "-db-subnets"),
		"subnet_ids": topo.IsolatedSubnetIDs(),
	})
	if err != nil {
		return nil, err
	}

	cluster, err := b.AddNode("aws_rds_cluster", env.Name+"-db", map[string]graph.Value{
		"cluster_identifier":     graph.Str(env.Name + "-db"),
		"engine":                 graph.Str("aurora-mysql"),
		"engine_version":         graph.Str(env.Database.EngineVersion),
		"database_name":          graph.Str(env.Database.DatabaseName),
		"master_username":        graph.Str(env.Database.Username),
		"master_password":        cred.Ref(),
		"port":                   graph.Num(databasePort),
		"db_subnet_group_name":   b.Reference(group, "name"),
		"vpc_security_group_ids": graph.Values(b.Reference(boundary.Node(), "id")),
		"availability_zones":     graph.Strs(topo.Zones...),
		"skip_final_snapshot":    graph.Bool(true),
	})
	if err != nil {
		return nil, err
	}

	for i := 0; i < env.Database.Instances; i++ {
		if _, err := b.AddNode("aws_rds_cluster_instance", fmt.Sprintf("%s-db-%d", env.Name, i), map[string]graph.Value{
			"identifier":           graph.Str(fmt.Sprintf("%s-db-%d", env.Name, i)),
			"cluster_identifier":   b.Reference(cluster, "id"),
			"engine":               graph.Str("aurora-mysql"),
			"engine_version":       graph.Str(env.Database.EngineVersion),
			"instance_class":       graph.Str(env.Database.InstanceClass),
			"db_subnet_group_name": b.Reference(group, "name"),
		}); err != nil {
			return nil, err
		}
	}
	return cluster, nil
}

func composeJob(b *graph.Builder, env config.Environment, topo *network.Topology, boundary *mesh.Boundary, cluster *graph.Node, admin *secrets.Record) (*graph.Node, error) {
	role, err := b.AddNode("aws_iam_role", env.Name+"-job-role", map[string]graph.Value{
		"name":               graph.Str(env.Name + "-job-role"),
		"assume_role_policy": graph.Str(glueAssumeRolePolicy),
	})
	if err != nil {
		return nil, err
	}
	if _, err := b.AddNode("aws_iam_role_policy_attachment", env.Name+"-job-role-glue", map[string]graph.Value{
		"role":       b.Reference(role, "name"),
		"policy_arn": graph.Str(glueServiceRolePolicy),
	}); err != nil {
		return nil, err
	}

	// The connection carries the cluster endpoint, which is unknown until
	// materialization; the JDBC URL is therefore a template around a
	// deferred value. Credentials come from the secret, not from here.
	connection, err := b.AddNode("aws_glue_connection", env.Name+"-jdbc", map[string]graph.Value{
		"name": graph.Str(env.Name + "-jdbc"),
		"connection_properties": graph.Map{Entries: map[string]graph.Value{
			"JDBC_CONNECTION_URL": graph.Format(
				fmt.Sprintf("jdbc:mysql://%%s:%d/%s", databasePort, env.Database.DatabaseName),
				b.Reference(cluster, "endpoint"),
			),
			"SECRET_ID": admin.ARN(),
		}},
		"physical_connection_requirements": graph.Map{Entries: map[string]graph.Value{
			"availability_zone":      graph.Str(topo.Private.Zone),
			"subnet_id":              b.Reference(topo.Private.Node, "id"),
			"security_group_id_list": graph.Values(b.Reference(boundary.Node(), "id")),
		}},
	})
	if err != nil {
		return nil, err
	}

	glueJob, err := b.AddNode("aws_glue_job", env.Job.Name, map[string]graph.Value{
		"name":         graph.Str(env.Job.Name),
		"role_arn":     b.Reference(role, "arn"),
		"glue_version": graph.Str(env.Job.GlueVersion),
		"max_capacity": graph.Float(env.Job.MaxCapacity),
		"command": graph.Map{Entries: map[string]graph.Value{
			"name":            graph.Str("pythonshell"),
			"python_version":  graph.Str("3.9"),
			"script_location": graph.Str(env.Job.ScriptLocation),
		}},
		"connections": graph.Values(b.Reference(connection, "name")),
		"default_arguments": graph.Map{Entries: map[string]graph.Value{
			"--secret_arn":    admin.ARN(),
			"--database_name": graph.Str(env.Database.DatabaseName),
			"--region":        graph.Str(env.Region),
		}},
	})
	if err != nil {
		return nil, err
	}
	return glueJob, nil
}

// glueAssumeRolePolicy lets the managed batch service assume the job role.
const glueAssumeRolePolicy = `{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Effect": "Allow",
      "Principal": {"Service": "glue.amazonaws.com"},
      "Action": "sts:AssumeRole"
    }
  ]
}`
