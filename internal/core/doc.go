// Package core provides the domain models shared by the attachment pipeline.
//
// # Design Principles
//
//  1. Artifacts are immutable once built and consumed exactly once.
//  2. A SourceLocation names the assertion call site, never the place where
//     a deferred delivery happens to execute.
//  3. No type in this package talks to a test runner.
//
// # Core Types
//
// Payload: a suggested name and the regenerated bytes produced by the builder.
// Artifact: a payload bound to the location of the assertion that produced it.
// SourceLocation: file identifier, path, line and column of an assertion.
// OutcomeKind: Recorded, Matched or Mismatched, as classified by the comparison layer.
// TestRef: the identity of a test invocation, as seen by report sinks.
package core
