package config

import (
	"errors"
	"testing"
)

const validConfig = `
name: "dev"
cidr: "10.0.0.0/16"
zones: ["eu-central-1a", "eu-central-1b"]
job: {
	name:           "generate-data"
	scriptLocation: "s3://dev-artifacts/jobs/generate_data_to_rds.py"
}
`

func TestParseAppliesDefaults(t *testing.T) {
	env, err := Parse([]byte(validConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if env.Name != "dev" {
		t.Errorf("Name = %q, want %q", env.Name, "dev")
	}
	if env.Region != "eu-central-1" {
		t.Errorf("Region default = %q, want %q", env.Region, "eu-central-1")
	}
	if env.Database.Instances != 2 {
		t.Errorf("Database.Instances default = %d, want 2", env.Database.Instances)
	}
	if env.Database.Username != "admin" {
		t.Errorf("Database.Username default = %q, want %q", env.Database.Username, "admin")
	}
	if env.Database.PasswordLength != 41 {
		t.Errorf("Database.PasswordLength default = %d, want 41", env.Database.PasswordLength)
	}
	if env.Job.GlueVersion != "4.0" {
		t.Errorf("Job.GlueVersion default = %q, want %q", env.Job.GlueVersion, "4.0")
	}
}

func TestParseRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{
			name: "missing job",
			src: `
name: "dev"
cidr: "10.0.0.0/16"
zones: ["eu-central-1a", "eu-central-1b"]
`,
		},
		{
			name: "single zone",
			src: `
name: "dev"
cidr: "10.0.0.0/16"
zones: ["eu-central-1a"]
job: {name: "j", scriptLocation: "s3://b/k.py"}
`,
		},
		{
			name: "malformed cidr",
			src: `
name: "dev"
cidr: "10.0.0.0"
zones: ["eu-central-1a", "eu-central-1b"]
job: {name: "j", scriptLocation: "s3://b/k.py"}
`,
		},
		{
			name: "script outside object storage",
			src: `
name: "dev"
cidr: "10.0.0.0/16"
zones: ["eu-central-1a", "eu-central-1b"]
job: {name: "j", scriptLocation: "/tmp/script.py"}
`,
		},
		{
			name: "weak password length",
			src: `
name: "dev"
cidr: "10.0.0.0/16"
zones: ["eu-central-1a", "eu-central-1b"]
database: passwordLength: 4
job: {name: "j", scriptLocation: "s3://b/k.py"}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src))
			var invalid InvalidConfigError
			if !errors.As(err, &invalid) {
				t.Fatalf("Parse() error = %v, want InvalidConfigError", err)
			}
		})
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	src := validConfig + `
database: {
	instances:     3
	instanceClass: "db.r6g.large"
}
`
	env, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if env.Database.Instances != 3 {
		t.Errorf("Database.Instances = %d, want 3", env.Database.Instances)
	}
	if env.Database.InstanceClass != "db.r6g.large" {
		t.Errorf("Database.InstanceClass = %q, want db.r6g.large", env.Database.InstanceClass)
	}
}
