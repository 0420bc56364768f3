// Package mesh composes pairwise traffic-permission rules between security
// boundaries. Every permitted flow is declared symmetrically: one egress rule
// on the sender and one ingress rule on the receiver. The API cannot express
// an ingress rule from an open CIDR, so least privilege holds by
// construction.
package mesh
