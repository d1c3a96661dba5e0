package validate

// ClusterSuggestions carries non-fatal advisories surfaced alongside a
// successful validation — timing choices that are legal but risky, for
// instance. An empty slice means nothing to flag.
type ClusterSuggestions struct {
	Advisories []string
}

// ComprehensiveValidator composes NodeValidator, TimeoutValidator, and
// ClusterValidator into the single gate pkg/node calls before accepting
// a topology change or bootstrapping a cluster.
type ComprehensiveValidator struct {
	Node    *NodeValidator
	Timeout *TimeoutValidator
	Cluster *ClusterValidator
}

func NewComprehensiveValidator(cfg ValidationConfig) *ComprehensiveValidator {
	return &ComprehensiveValidator{
		Node:    NewNodeValidator(cfg),
		Timeout: NewTimeoutValidator(cfg),
		Cluster: NewClusterValidator(cfg),
	}
}

// ValidateCluster validates every member's node id and address, checks
// the membership set itself (including the in-flight-change rule), and
// validates the timing triple. It fails fast on the first error but
// always returns whatever timing advisories apply once the hard checks
// pass.
func (c *ComprehensiveValidator) ValidateCluster(members []Member, timeouts Timeouts, changeInFlight bool) (*ClusterSuggestions, error) {
	for _, m := range members {
		if err := c.Node.ValidateNode(m.NodeID, m.Address); err != nil {
			return nil, err
		}
	}
	if err := c.Cluster.ValidateChange(changeInFlight, members); err != nil {
		return nil, err
	}
	advisories, err := c.Timeout.Validate(timeouts)
	if err != nil {
		return nil, err
	}
	return &ClusterSuggestions{Advisories: advisories}, nil
}
