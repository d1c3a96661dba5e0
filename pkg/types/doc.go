/*
Package types defines the configuration data model shared across Conflux's
storage, state machine, and query-resolution layers.

A Config lives inside a ConfigNamespace (tenant/app/env) and owns a list of
Release targeting rules; its immutable ConfigVersions are stored apart
from it, each pointing back at the Config by ConfigID. Releases
never embed version payloads — they reference a ConfigVersion by id, so a
rollout is just a release pointing at a different, already-replicated
version.

None of the types in this package hold locks or do I/O; they are plain
data plus the pure label-matching and ID-key helpers the state machine and
the node's query path both need, so that "does release R match labels L"
has exactly one implementation.
*/
package types
