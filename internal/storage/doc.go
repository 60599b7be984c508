// Package storage implements the page-addressable storage and durability
// core of the database: a random-access file abstraction, a share-counted
// in-memory page cache, an asynchronous log writer queue, and the disk
// service that wires them together for readers and writers.
//
// Higher layers (document model, B-tree indexes, query engine, transaction
// orchestration) are not part of this package; they consume the contracts
// exposed here.
package storage
