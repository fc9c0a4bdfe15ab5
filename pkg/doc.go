// Package pkg provides the core libraries for repocull channel curation.
//
// # Overview
//
// Repocull filters a conda channel index down to a smaller, consistent
// subset that standard clients consume unchanged. The pkg directory is
// organized into a few main areas:
//
//  1. [repodata] - Loading, indexing, and rendering repodata documents
//  2. [version], [matchspec] - Conda version ordering and match specifiers
//  3. [policy] - The administrator configuration a run executes under
//  4. [solve] - The installability oracle used for compatibility pruning
//  5. [cull] - The staged removal pipeline itself
//  6. [fetch], [cache] - Repodata transport and local caching
//
// # Architecture
//
// The typical data flow through repocull:
//
//	Channel repodata (noarch + platform subdir)
//	         ↓
//	repodata.Load → repodata.Index
//	         ↓
//	cull.Runner (policy filters → compatibility → closure)
//	         ↓
//	repodata.Render → curated repodata.json + report
//
// Each stage records its removals with a reason, so every record absent
// from the output can be explained afterwards.
package pkg
