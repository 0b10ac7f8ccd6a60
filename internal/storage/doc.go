// Package storage provides the record store for banks, activities and
// reminder occurrences.
//
// It currently supports:
//   - sqlite: durable single-file database (default for deployments)
//   - memory: in-process maps (tests and throwaway dev runs)
package storage
