// Package memory provides in-memory implementations of the store
// interfaces. They back tests and single-node deployments; the semantics
// (optimistic version checks, owner scoping, query filtering) match the
// postgres implementations exactly.
package memory
