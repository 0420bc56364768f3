package secrets

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/telhaus/cirrus/pkg/graph"
)

// Charset selects the alphabet a credential is generated from.
type Charset string

const (
	// CharsetAlphanumeric is letters and digits only. Safe for database
	// engines that reject punctuation in master passwords.
	CharsetAlphanumeric Charset = "alphanumeric"

	// CharsetASCII adds punctuation that is broadly accepted in connection
	// strings.
	CharsetASCII Charset = "ascii"
)

var alphabets = map[Charset]string{
	CharsetAlphanumeric: "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789",
	CharsetASCII:        "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789!#$%&*+-=?^_",
}

// minLength is the smallest credential the manager will issue.
const minLength = 16

// Credential is a generated secret value. Its plaintext is held privately
// and sealed into the graph for the provisioning engine; callers wire it
// into consumers through Ref only.
type Credential struct {
	node  *graph.Node
	value string
}

// Node returns the credential-generation node.
func (c *Credential) Node() *graph.Node { return c.node }

// Ref returns the deferred reference consumers use in place of the
// plaintext value.
func (c *Credential) Ref() graph.Deferred {
	return graph.Deferred{Source: c.node, Attribute: "value"}
}

// Record is a stored secret: one storage node plus one current-version node.
// Downstream consumers address it only through its deferred ID and ARN.
type Record struct {
	name    string
	secret  *graph.Node
	version *graph.Node
}

// Name returns the secret's name.
func (r *Record) Name() string { return r.name }

// Node returns the secret storage node.
func (r *Record) Node() *graph.Node { return r.secret }

// Version returns the current-version node.
func (r *Record) Version() *graph.Node { return r.version }

// ID returns the deferred storage ID.
func (r *Record) ID() graph.Deferred {
	return graph.Deferred{Source: r.secret, Attribute: "id"}
}

// ARN returns the deferred storage ARN.
func (r *Record) ARN() graph.Deferred {
	return graph.Deferred{Source: r.secret, Attribute: "arn"}
}

// Manager issues credentials and wraps them in secret records within one
// composition pass. Credentials are regenerated on every pass; storage is
// recreated along with them, so no cross-pass stability is promised.
type Manager struct {
	builder *graph.Builder
	issued  map[string]*Credential
	bound   map[*graph.Node]string
}

// NewManager creates a manager over the given graph builder.
func NewManager(b *graph.Builder) *Manager {
	return &Manager{
		builder: b,
		issued:  make(map[string]*Credential),
		bound:   make(map[*graph.Node]string),
	}
}

// IssueCredential generates a random secret value of the given length and
// declares its generation node. The node's properties carry only length and
// charset; the plaintext is sealed for the engine and never appears in any
// property or rendered artifact.
func (m *Manager) IssueCredential(name string, length int, charset Charset) (*Credential, error) {
	if length < minLength {
		return nil, WeakCredentialError{Length: length, Min: minLength}
	}
	alphabet, ok := alphabets[charset]
	if !ok {
		return nil, UnknownCharsetError{Charset: charset}
	}

	value, err := generate(length, alphabet)
	if err != nil {
		return nil, fmt.Errorf("generating credential %s: %w", name, err)
	}

	node, err := m.builder.AddNode("credential", name, map[string]graph.Value{
		"length":  graph.Num(length),
		"charset": graph.Str(string(charset)),
	})
	if err != nil {
		return nil, err
	}
	m.builder.Seal(node, "value", value)

	cred := &Credential{node: node, value: value}
	m.issued[value] = cred
	return cred, nil
}

// StoreSecret wraps the payload into a storage node and a current-version
// node and returns an opaque record. Payload fields may be deferred values,
// including credential references and attributes of not-yet-known resources.
// A payload that carries an issued credential's plaintext as a literal is
// rejected, as is wiring the same credential into a second record.
func (m *Manager) StoreSecret(name string, payload map[string]graph.Value) (*Record, error) {
	for field, v := range payload {
		if err := m.checkPlaintext(name, field, v); err != nil {
			return nil, err
		}
	}
	for _, v := range payload {
		if err := m.checkReuse(name, v); err != nil {
			return nil, err
		}
	}

	b := m.builder
	secret, err := b.AddNode("aws_secretsmanager_secret", name, map[string]graph.Value{
		"name": graph.Str(name),
	})
	if err != nil {
		return nil, err
	}

	entries := make(map[string]graph.Value, len(payload))
	for k, v := range payload {
		entries[k] = v
	}
	version, err := b.AddNode("aws_secretsmanager_secret_version", name+"-current", map[string]graph.Value{
		"secret_id":     b.Reference(secret, "id"),
		"secret_string": graph.Map{Entries: entries},
	})
	if err != nil {
		return nil, err
	}

	m.markBound(name, payload)
	return &Record{name: name, secret: secret, version: version}, nil
}

func (m *Manager) checkPlaintext(secret, field string, v graph.Value) error {
	var err error
	walkLiterals(v, func(s string) {
		if err == nil {
			if _, issued := m.issued[s]; issued {
				err = PlaintextPayloadError{Secret: secret, Field: field}
			}
		}
	})
	return err
}

func (m *Manager) checkReuse(secret string, v graph.Value) error {
	var err error
	walkRefs(v, func(d graph.Deferred) {
		if err != nil || d.Source == nil {
			return
		}
		if existing, bound := m.bound[d.Source]; bound && existing != secret {
			err = CredentialReuseError{Credential: d.Source.LogicalName, Existing: existing}
		}
	})
	return err
}

func (m *Manager) markBound(secret string, payload map[string]graph.Value) {
	for _, v := range payload {
		walkRefs(v, func(d graph.Deferred) {
			if d.Source != nil && d.Source.Kind == "credential" {
				m.bound[d.Source] = secret
			}
		})
	}
}

func walkLiterals(v graph.Value, fn func(string)) {
	switch t := v.(type) {
	case graph.Literal:
		if s, ok := t.V.(string); ok {
			fn(s)
		}
	case graph.List:
		for _, item := range t.Items {
			walkLiterals(item, fn)
		}
	case graph.Map:
		for _, entry := range t.Entries {
			walkLiterals(entry, fn)
		}
	case graph.Fmt:
		for _, arg := range t.Args {
			walkLiterals(arg, fn)
		}
	}
}

func walkRefs(v graph.Value, fn func(graph.Deferred)) {
	switch t := v.(type) {
	case graph.Deferred:
		fn(t)
	case graph.List:
		for _, item := range t.Items {
			walkRefs(item, fn)
		}
	case graph.Map:
		for _, entry := range t.Entries {
			walkRefs(entry, fn)
		}
	case graph.Fmt:
		for _, arg := range t.Args {
			walkRefs(arg, fn)
		}
	}
}

// generate draws length characters uniformly from the alphabet using
// crypto/rand.
func generate(length int, alphabet string) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}
