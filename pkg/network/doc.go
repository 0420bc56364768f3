// Package network builds the tiered network topology: a VPC carved into
// isolated, private and public subnets with per-tier routing. Isolated
// subnets have no route to the internet, the private subnet egresses through
// a NAT gateway in the public subnet, and the public subnet egresses through
// an internet gateway. The structure is declared only; nothing is created.
package network
