package validate

import (
	"fmt"
	"net"
	"regexp"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// dnsLabelSeq matches a dotted sequence of DNS labels (RFC 1123), the
// form a hostname takes when it isn't an IP literal.
var dnsLabelSeq = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

// NodeValidator checks a single node's identifier and advertised
// address, the first gate a topology change must pass.
type NodeValidator struct {
	cfg ValidationConfig
	v   *validator.Validate
}

func NewNodeValidator(cfg ValidationConfig) *NodeValidator {
	return &NodeValidator{cfg: cfg, v: validator.New()}
}

// ValidateNode rejects a node id of zero and an address that is not a
// well-formed "host:port" with a non-empty host (IP literal or DNS
// label sequence) and a port in [1, 65535].
func (n *NodeValidator) ValidateNode(nodeID uint64, address string) error {
	if err := n.v.Var(nodeID, "gt=0"); err != nil {
		return fmt.Errorf("validate: node_id must be greater than zero: %w", err)
	}
	if err := n.v.Var(address, fmt.Sprintf("required,max=%d", n.cfg.MaxAddressLength)); err != nil {
		return fmt.Errorf("validate: address: %w", err)
	}

	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("validate: address %q is not host:port: %w", address, err)
	}
	if host == "" {
		return fmt.Errorf("validate: address %q has an empty host", address)
	}
	if net.ParseIP(host) == nil && !dnsLabelSeq.MatchString(host) {
		return fmt.Errorf("validate: host %q is neither an IP literal nor a valid DNS name", host)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("validate: port %q is out of range [1, 65535]", portStr)
	}
	return nil
}
