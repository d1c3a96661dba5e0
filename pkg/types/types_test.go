package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReleaseMatchesSubsetOfClientLabels(t *testing.T) {
	r := Release{Labels: map[string]string{"cohort": "canary", "region": "eu"}}

	assert.True(t, r.Matches(map[string]string{"cohort": "canary", "region": "eu", "extra": "ignored"}))
	assert.False(t, r.Matches(map[string]string{"cohort": "canary"}), "missing region label")
	assert.False(t, r.Matches(map[string]string{"cohort": "stable", "region": "eu"}), "mismatched cohort value")
	assert.True(t, (&Release{}).Matches(nil), "empty label set always matches")
}

func TestReleaseIsDefault(t *testing.T) {
	assert.True(t, (&Release{}).IsDefault())
	assert.False(t, (&Release{Labels: map[string]string{"cohort": "canary"}}).IsDefault())
}

func TestConfigDefaultReleaseReturnsHighestPriority(t *testing.T) {
	c := &Config{Releases: []Release{
		{Labels: map[string]string{}, Priority: 0},
		{Labels: map[string]string{"cohort": "canary"}, Priority: 10},
		{Labels: map[string]string{"cohort": "beta"}, Priority: 5},
	}}
	assert.Equal(t, int32(10), c.DefaultRelease().Priority)
	assert.Nil(t, (&Config{}).DefaultRelease())
}

func TestFindMatchingReleasePicksHighestMatchingPriority(t *testing.T) {
	c := &Config{Releases: []Release{
		{Labels: map[string]string{}, Priority: 0},
		{Labels: map[string]string{"cohort": "canary"}, Priority: 10},
		{Labels: map[string]string{"cohort": "canary", "region": "eu"}, Priority: 20},
	}}

	got := c.FindMatchingRelease(map[string]string{"cohort": "canary", "region": "eu"})
	assert.Equal(t, int32(20), got.Priority)

	got = c.FindMatchingRelease(map[string]string{"cohort": "canary", "region": "us"})
	assert.Equal(t, int32(10), got.Priority)
}

// TestFindMatchingReleasePriorityTieBreak pins down the actual tie-break
// behavior: among releases matching with equal priority, the one that
// appears first in Releases wins. FindMatchingRelease walks Releases in
// order and only replaces the current best on a strictly greater
// priority, so an earlier same-priority match is never displaced by a
// later one.
func TestFindMatchingReleasePriorityTieBreak(t *testing.T) {
	c := &Config{Releases: []Release{
		{Labels: map[string]string{"cohort": "first"}, VersionID: 1, Priority: 10},
		{Labels: map[string]string{"cohort": "second"}, VersionID: 2, Priority: 10},
	}}

	got := c.FindMatchingRelease(map[string]string{"cohort": "first", "extra": "x"})
	assert.Equal(t, uint64(1), got.VersionID)

	c2 := &Config{Releases: []Release{
		{Labels: map[string]string{}, VersionID: 1, Priority: 10},
		{Labels: map[string]string{}, VersionID: 2, Priority: 10},
	}}
	got2 := c2.FindMatchingRelease(nil)
	assert.Equal(t, uint64(1), got2.VersionID, "first-inserted release at the top priority wins ties")
}

func TestFindMatchingReleaseFallsBackToDefault(t *testing.T) {
	c := &Config{Releases: []Release{
		{Labels: map[string]string{}, VersionID: 1, Priority: 0},
		{Labels: map[string]string{"cohort": "canary"}, VersionID: 2, Priority: 10},
	}}

	got := c.FindMatchingRelease(map[string]string{"cohort": "stable"})
	assert.NotNil(t, got)
	assert.True(t, got.IsDefault())
	assert.Equal(t, uint64(1), got.VersionID)
}

func TestFindMatchingReleaseNoMatchNoDefaultReturnsNil(t *testing.T) {
	c := &Config{Releases: []Release{
		{Labels: map[string]string{"cohort": "canary"}, Priority: 10},
	}}
	assert.Nil(t, c.FindMatchingRelease(map[string]string{"cohort": "stable"}))
	assert.Nil(t, (&Config{}).FindMatchingRelease(nil))
}

func TestConfigReleaseIndex(t *testing.T) {
	c := &Config{Releases: []Release{
		{Labels: map[string]string{"cohort": "canary"}},
		{Labels: map[string]string{}},
	}}
	assert.Equal(t, 0, c.ReleaseIndex(map[string]string{"cohort": "canary"}))
	assert.Equal(t, 1, c.ReleaseIndex(nil))
	assert.Equal(t, -1, c.ReleaseIndex(map[string]string{"cohort": "missing"}))
}

func TestConfigNameKey(t *testing.T) {
	ns := ConfigNamespace{Tenant: "acme", App: "billing", Env: "prod"}
	c := &Config{Namespace: ns, Name: "feature-flags"}
	assert.Equal(t, "acme/billing/prod\x00feature-flags", c.NameKey())
	assert.Equal(t, c.NameKey(), NameKey(ns, "feature-flags"))
}

func TestConfigNamespaceEmpty(t *testing.T) {
	assert.True(t, (ConfigNamespace{}).Empty())
	assert.True(t, (ConfigNamespace{Tenant: "acme"}).Empty())
	assert.False(t, (ConfigNamespace{Tenant: "acme", App: "billing", Env: "prod"}).Empty())
}
