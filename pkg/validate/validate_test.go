package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateNodeRejectsZeroID(t *testing.T) {
	v := NewNodeValidator(DefaultValidationConfig())
	err := v.ValidateNode(0, "127.0.0.1:8080")
	assert.Error(t, err)
}

func TestValidateNodeRejectsMalformedAddress(t *testing.T) {
	v := NewNodeValidator(DefaultValidationConfig())
	err := v.ValidateNode(1, "not-an-address")
	assert.Error(t, err)
}

func TestValidateNodeRejectsBadPort(t *testing.T) {
	v := NewNodeValidator(DefaultValidationConfig())
	err := v.ValidateNode(1, "127.0.0.1:70000")
	assert.Error(t, err)
}

func TestValidateNodeAcceptsHostnameAndIP(t *testing.T) {
	v := NewNodeValidator(DefaultValidationConfig())
	assert.NoError(t, v.ValidateNode(1, "node-a.internal:8300"))
	assert.NoError(t, v.ValidateNode(2, "10.0.0.5:8300"))
	assert.NoError(t, v.ValidateNode(3, "[::1]:8300"))
}

func TestTimeoutValidatorRejectsOrdering(t *testing.T) {
	v := NewTimeoutValidator(DefaultValidationConfig())
	_, err := v.Validate(Timeouts{HeartbeatIntervalMS: 500, ElectionTimeoutMinMS: 200, ElectionTimeoutMaxMS: 300})
	assert.Error(t, err)
}

func TestTimeoutValidatorAdvisesLowRatio(t *testing.T) {
	v := NewTimeoutValidator(DefaultValidationConfig())
	advisories, err := v.Validate(Timeouts{HeartbeatIntervalMS: 100, ElectionTimeoutMinMS: 150, ElectionTimeoutMaxMS: 300})
	require.NoError(t, err)
	assert.NotEmpty(t, advisories)
}

func TestTimeoutValidatorCleanConfigHasNoAdvisory(t *testing.T) {
	v := NewTimeoutValidator(DefaultValidationConfig())
	advisories, err := v.Validate(Timeouts{HeartbeatIntervalMS: 100, ElectionTimeoutMinMS: 500, ElectionTimeoutMaxMS: 1000})
	require.NoError(t, err)
	assert.Empty(t, advisories)
}

func TestClusterValidatorRejectsDuplicateNodeID(t *testing.T) {
	v := NewClusterValidator(DefaultValidationConfig())
	err := v.ValidateMembership([]Member{
		{NodeID: 1, Address: "a:8300"},
		{NodeID: 1, Address: "b:8300"},
	})
	assert.Error(t, err)
}

func TestClusterValidatorRejectsChangeWhileInFlight(t *testing.T) {
	v := NewClusterValidator(DefaultValidationConfig())
	err := v.ValidateChange(true, []Member{{NodeID: 1, Address: "a:8300"}})
	assert.Error(t, err)
}

func TestClusterValidatorRejectsOversizedCluster(t *testing.T) {
	cfg := DefaultValidationConfig()
	cfg.MaxClusterSize = 2
	v := NewClusterValidator(cfg)
	err := v.ValidateMembership([]Member{
		{NodeID: 1, Address: "a:8300"},
		{NodeID: 2, Address: "b:8300"},
		{NodeID: 3, Address: "c:8300"},
	})
	assert.Error(t, err)
}

func TestComprehensiveValidatorHappyPath(t *testing.T) {
	c := NewComprehensiveValidator(DefaultValidationConfig())
	suggestions, err := c.ValidateCluster(
		[]Member{{NodeID: 1, Address: "a:8300"}, {NodeID: 2, Address: "b:8300"}},
		Timeouts{HeartbeatIntervalMS: 100, ElectionTimeoutMinMS: 500, ElectionTimeoutMaxMS: 1000},
		false,
	)
	require.NoError(t, err)
	assert.Empty(t, suggestions.Advisories)
}
