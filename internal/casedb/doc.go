// Package casedb is the per-run case database: extracted file records,
// unallocated ranges, carve batches, the analysis blackboard, and run history.
//
// The store lives in <output>/case.db. Analysis modules share it as mutable
// state; the scheduler drains one task at a time so there is a single writer.
// Blackboard values are JSON documents and are read back with gjson paths.
package casedb
