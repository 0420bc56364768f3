// Package secrets manages one-time credential generation and opaque secret
// references. A credential's plaintext exists only transiently during one
// composition pass: it travels to the provisioning engine through the
// graph's sealed store and reaches consumers exclusively as a deferred
// reference, never as a literal property value.
package secrets
