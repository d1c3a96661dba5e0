package types

import "time"

// CommandOp names a state machine entry kind, carried in every proposed
// Raft log entry so the applier knows which payload to unmarshal.
type CommandOp string

const (
	OpCreateConfig   CommandOp = "create_config"
	OpPutVersion     CommandOp = "put_version"
	OpUpsertRelease  CommandOp = "upsert_release"
	OpDeleteRelease  CommandOp = "delete_release"
	OpDeleteConfig   CommandOp = "delete_config"
	OpNoop           CommandOp = "noop"
)

// Command is the envelope every Raft log entry carries: an operation
// name plus its JSON-encoded payload. The state machine's Apply switches
// on Op and unmarshals Data into the matching *Entry struct below.
type Command struct {
	Op   CommandOp `json:"op"`
	Data []byte    `json:"data"`
}

// CreateConfigEntry allocates a new Config. Ts is the leader's proposal
// timestamp — the applier must use it verbatim for CreatedAt/UpdatedAt
// rather than reading the local clock.
type CreateConfigEntry struct {
	Namespace ConfigNamespace `json:"namespace"`
	Name      string          `json:"name"`
	Schema    string          `json:"schema"`
	Ts        time.Time       `json:"ts"`
}

// PutVersionEntry adds an immutable ConfigVersion to an existing Config
// and advances its LatestVersionID.
type PutVersionEntry struct {
	ConfigID uint64       `json:"config_id"`
	Format   ConfigFormat `json:"format"`
	Payload  []byte       `json:"payload"`
	Checksum string       `json:"checksum"`
	Author   string       `json:"author"`
	Ts       time.Time    `json:"ts"`
}

// UpsertReleaseEntry replaces the release with identical Labels, or
// appends a new one if none matches.
type UpsertReleaseEntry struct {
	ConfigID  uint64            `json:"config_id"`
	Labels    map[string]string `json:"labels"`
	VersionID uint64            `json:"version_id"`
	Priority  int32             `json:"priority"`
}

// DeleteReleaseEntry removes the release whose Labels equal Labels
// exactly.
type DeleteReleaseEntry struct {
	ConfigID uint64            `json:"config_id"`
	Labels   map[string]string `json:"labels"`
}

// DeleteConfigEntry deletes a Config and cascades to its versions and
// releases in the same apply step.
type DeleteConfigEntry struct {
	ConfigID uint64 `json:"config_id"`
}

// NoopEntry is written by a new leader on election, to commit entries
// from prior terms per the Raft paper's commitment rule (§4.4). It
// carries no state-machine-visible effect beyond advancing last_applied.
type NoopEntry struct {
	Term uint64 `json:"term"`
}
