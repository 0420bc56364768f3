// Package graph provides the resource graph model used to declare cloud
// resources before they exist. Nodes carry desired properties, some of which
// are deferred references to attributes of other nodes; edges are inferred
// from those references and the finalized graph is handed to an external
// provisioning engine for materialization.
package graph
