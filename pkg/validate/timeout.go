package validate

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Timeouts is the trio of durations every node in the cluster must agree
// on: heartbeat_interval, election_timeout_min, election_timeout_max.
type Timeouts struct {
	HeartbeatIntervalMS  int64
	ElectionTimeoutMinMS int64
	ElectionTimeoutMaxMS int64
}

// TimeoutValidator checks the Raft timing triple for internal
// consistency and flags (without rejecting) timings that invite
// spurious elections.
type TimeoutValidator struct {
	cfg ValidationConfig
	v   *validator.Validate
}

func NewTimeoutValidator(cfg ValidationConfig) *TimeoutValidator {
	return &TimeoutValidator{cfg: cfg, v: validator.New()}
}

// Validate rejects non-positive or out-of-ceiling durations and any
// ordering that violates heartbeat_interval < election_timeout_min <=
// election_timeout_max. It returns non-fatal advisories when the
// timings are valid but risk frequent elections.
func (t *TimeoutValidator) Validate(tm Timeouts) ([]string, error) {
	for name, v := range map[string]int64{
		"heartbeat_interval":   tm.HeartbeatIntervalMS,
		"election_timeout_min": tm.ElectionTimeoutMinMS,
		"election_timeout_max": tm.ElectionTimeoutMaxMS,
	} {
		if err := t.v.Var(v, "gt=0"); err != nil {
			return nil, fmt.Errorf("validate: %s must be positive: %w", name, err)
		}
		if v > t.cfg.MaxTimeoutMS {
			return nil, fmt.Errorf("validate: %s (%dms) exceeds the configured ceiling of %dms", name, v, t.cfg.MaxTimeoutMS)
		}
	}
	if tm.HeartbeatIntervalMS >= tm.ElectionTimeoutMinMS {
		return nil, fmt.Errorf("validate: heartbeat_interval (%dms) must be less than election_timeout_min (%dms)",
			tm.HeartbeatIntervalMS, tm.ElectionTimeoutMinMS)
	}
	if tm.ElectionTimeoutMinMS > tm.ElectionTimeoutMaxMS {
		return nil, fmt.Errorf("validate: election_timeout_min (%dms) must be <= election_timeout_max (%dms)",
			tm.ElectionTimeoutMinMS, tm.ElectionTimeoutMaxMS)
	}

	var advisories []string
	recommended := tm.HeartbeatIntervalMS * t.cfg.RecommendedElectionToHeartbeatRatio
	if tm.ElectionTimeoutMinMS < recommended {
		advisories = append(advisories, fmt.Sprintf(
			"election_timeout_min (%dms) is below the recommended %dx heartbeat_interval (%dms); elections may race with heartbeats",
			tm.ElectionTimeoutMinMS, t.cfg.RecommendedElectionToHeartbeatRatio, recommended))
	}
	return advisories, nil
}
