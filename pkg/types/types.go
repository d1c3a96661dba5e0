// Package types defines Conflux's configuration data model: the
// ConfigNamespace/Config/ConfigVersion/Release types shared by the state
// machine, the storage engine, and query resolution.
package types

import (
	"fmt"
	"time"
)

// ConfigFormat identifies how a ConfigVersion's payload bytes should be
// interpreted by the client that requested it. The store itself never
// parses the payload.
type ConfigFormat string

const (
	FormatJSON       ConfigFormat = "json"
	FormatYAML       ConfigFormat = "yaml"
	FormatTOML       ConfigFormat = "toml"
	FormatProperties ConfigFormat = "properties"
	FormatXML        ConfigFormat = "xml"
)

// ConfigNamespace is the (tenant, app, env) grouping key for Configs.
type ConfigNamespace struct {
	Tenant string
	App    string
	Env    string
}

// String renders the namespace in its canonical tenant/app/env form.
func (n ConfigNamespace) String() string {
	return fmt.Sprintf("%s/%s/%s", n.Tenant, n.App, n.Env)
}

// Empty reports whether any of the namespace's three parts are unset.
func (n ConfigNamespace) Empty() bool {
	return n.Tenant == "" || n.App == "" || n.Env == ""
}

// Config is the metadata entity the state machine owns: a named,
// versioned configuration artifact within a namespace, plus the release
// rules that route clients to one of its versions.
type Config struct {
	ID              uint64
	Namespace       ConfigNamespace
	Name            string
	LatestVersionID uint64
	Releases        []Release
	Schema          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NameKey returns the secondary-index key the storage engine uses to
// enforce (namespace, name) uniqueness: "tenant/app/env\x00name".
func (c *Config) NameKey() string {
	return NameKey(c.Namespace, c.Name)
}

// NameKey builds the (namespace, name) index key used by the storage
// engine's app column family. Kept as a free function so callers that
// only have the namespace and name in hand (a proposal that hasn't been
// applied yet) can compute it without constructing a Config.
func NameKey(ns ConfigNamespace, name string) string {
	return ns.String() + "\x00" + name
}

// DefaultRelease returns the release with the highest priority, or nil if
// the Config has no releases. This is a convenience accessor; it is NOT
// the algorithm query resolution uses (see Config.FindMatchingRelease),
// which applies subset-matching before ranking by priority.
func (c *Config) DefaultRelease() *Release {
	if len(c.Releases) == 0 {
		return nil
	}
	best := &c.Releases[0]
	for i := 1; i < len(c.Releases); i++ {
		if c.Releases[i].Priority > best.Priority {
			best = &c.Releases[i]
		}
	}
	return best
}

// FindMatchingRelease implements the query resolution algorithm: filter
// releases whose labels are a subset of clientLabels, rank the survivors
// by descending priority (ties broken by the
// release's position within Releases), and fall back to the empty-label
// release if nothing matched. Returns nil if there is no match and no
// default release.
func (c *Config) FindMatchingRelease(clientLabels map[string]string) *Release {
	var best *Release
	var bestIdx int
	for i := range c.Releases {
		r := &c.Releases[i]
		if !r.Matches(clientLabels) {
			continue
		}
		if best == nil || r.Priority > best.Priority {
			best, bestIdx = r, i
			continue
		}
		if r.Priority == best.Priority && i < bestIdx {
			best, bestIdx = r, i
		}
	}
	if best != nil {
		return best
	}
	for i := range c.Releases {
		if c.Releases[i].IsDefault() {
			return &c.Releases[i]
		}
	}
	return nil
}

// ReleaseIndex returns the position of the release with the given labels,
// or -1 if none matches. UpsertRelease uses this for exact-label
// replacement.
func (c *Config) ReleaseIndex(labels map[string]string) int {
	for i := range c.Releases {
		if labelsEqual(c.Releases[i].Labels, labels) {
			return i
		}
	}
	return -1
}

func labelsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

// ConfigVersion is an immutable content object: opaque payload bytes plus
// the metadata needed to identify and audit them. The store never parses
// Payload.
type ConfigVersion struct {
	ID        uint64
	ConfigID  uint64
	Format    ConfigFormat
	Payload   []byte
	Checksum  string
	Author    string
	CreatedAt time.Time
}

// Release is a label-predicated targeting rule pointing a client cohort
// at a specific ConfigVersion with a priority.
type Release struct {
	Labels    map[string]string
	VersionID uint64
	Priority  int32
}

// IsDefault reports whether this is the "default release" — the one with
// no label predicate, matched only as a fallback.
func (r *Release) IsDefault() bool {
	return len(r.Labels) == 0
}

// Matches reports whether r's labels are a subset of clientLabels: every
// (k, v) pair in r.Labels must appear in clientLabels with an equal
// value. An empty label set always matches.
func (r *Release) Matches(clientLabels map[string]string) bool {
	for k, v := range r.Labels {
		if cv, ok := clientLabels[k]; !ok || cv != v {
			return false
		}
	}
	return true
}
