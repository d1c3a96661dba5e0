package validate

import "fmt"

// Member is one entry in a proposed cluster topology: a node id paired
// with its advertised address.
type Member struct {
	NodeID  uint64
	Address string
}

// ClusterValidator checks a proposed membership set, and that a
// membership change is not proposed while another is still in flight —
// the joint-consensus safety rule that no two membership changes may be
// in flight concurrently.
type ClusterValidator struct {
	cfg ValidationConfig
}

func NewClusterValidator(cfg ValidationConfig) *ClusterValidator {
	return &ClusterValidator{cfg: cfg}
}

// ValidateMembership rejects an empty set, a set larger than the
// configured ceiling, and any duplicate node id or address within it.
func (c *ClusterValidator) ValidateMembership(members []Member) error {
	if len(members) == 0 {
		return fmt.Errorf("validate: cluster must have at least one member")
	}
	if len(members) > c.cfg.MaxClusterSize {
		return fmt.Errorf("validate: cluster size %d exceeds the configured maximum of %d", len(members), c.cfg.MaxClusterSize)
	}
	seenIDs := make(map[uint64]struct{}, len(members))
	seenAddrs := make(map[string]struct{}, len(members))
	for _, m := range members {
		if _, ok := seenIDs[m.NodeID]; ok {
			return fmt.Errorf("validate: duplicate node id %d in proposed membership", m.NodeID)
		}
		seenIDs[m.NodeID] = struct{}{}
		if _, ok := seenAddrs[m.Address]; ok {
			return fmt.Errorf("validate: duplicate address %q in proposed membership", m.Address)
		}
		seenAddrs[m.Address] = struct{}{}
	}
	return nil
}

// ValidateChange additionally rejects a proposed membership change while
// another is already in flight, then validates the resulting membership
// set as ValidateMembership does.
func (c *ClusterValidator) ValidateChange(changeInFlight bool, newMembers []Member) error {
	if changeInFlight {
		return fmt.Errorf("validate: a membership change is already in flight; only one may be outstanding at a time")
	}
	return c.ValidateMembership(newMembers)
}
