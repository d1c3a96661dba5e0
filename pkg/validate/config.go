// Package validate implements Conflux's pre-acceptance Validator: pure
// functions that check node identifiers, addresses, timeouts, and
// proposed cluster topology before a mutation is ever proposed to Raft.
// None of it touches storage or the network; a rejection here never
// costs a log entry.
package validate

// ValidationConfig holds the tunable ceilings the individual validators
// consult: rather than hardcoding "255 chars" or "7 nodes" in the checks
// themselves, a deployment can tighten or loosen these without touching
// validator code.
type ValidationConfig struct {
	MaxAddressLength int
	MaxClusterSize   int
	// RecommendedElectionToHeartbeatRatio backs the TimeoutValidator's
	// non-fatal advisory that election_timeout_min should be at least
	// this many multiples of heartbeat_interval (a ratio of 3 is the
	// usual recommendation for Raft-like protocols).
	RecommendedElectionToHeartbeatRatio int64
	MaxTimeoutMS                        int64
}

// DefaultValidationConfig returns the ceilings Conflux ships with: a
// generous address length, a cluster size in line with Raft's usual
// odd-sized quorums, and the paper's recommended 3x heartbeat/election
// ratio.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxAddressLength:                    255,
		MaxClusterSize:                      7,
		RecommendedElectionToHeartbeatRatio: 3,
		MaxTimeoutMS:                        60_000,
	}
}
