// Package governance loads the authorization table that decides which
// producer may assert which claim type, plus approval and controller settings.
package governance

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dyluth/docket/internal/claim"
	"gopkg.in/yaml.v3"
)

// SupportedVersion is the only governance document version understood.
const SupportedVersion = "1.0"

const (
	defaultCallTimeout = 30 * time.Second
	defaultLockTTL     = 30 * time.Second

	// A mutating run makes up to lockedCalls timed calls while it holds the
	// scope lock: two validation rounds and the replacer.
	lockedCalls = 3
	// An omitted lock_ttl is lockTTLFactor call timeouts, leaving room for
	// execution and archiving.
	lockTTLFactor = 5
)

// Config represents the top-level governance.yml document.
// Obtain one through Load, Parse or Default; the result is immutable.
type Config struct {
	Version      string                `yaml:"version"`
	Capabilities map[string]Capability `yaml:"capabilities"`
	Approval     *ApprovalConfig       `yaml:"approval,omitempty"`
	Controller   *ControllerConfig     `yaml:"controller,omitempty"`

	allowed map[string]map[claim.Type]bool
}

// Capability lists the claim types one producer may assert.
// Both `Producer: [a, b]` and `Producer: {can_claim: [a, b]}` are accepted.
type Capability struct {
	CanClaim []string
}

// ApprovalConfig names extra fields that must be filled before an action is approved.
type ApprovalConfig struct {
	RequiredFields map[string][]string `yaml:"required_fields,omitempty"` // action -> output field names
}

// ControllerConfig tunes the pipeline.
type ControllerConfig struct {
	CallTimeout *time.Duration `yaml:"call_timeout,omitempty"` // Per producer/validator call, 0 disables (default 30s)
	LockTTL     *time.Duration `yaml:"lock_ttl,omitempty"`     // Distributed scope lock expiry (default 5x call_timeout, at least 30s)
}

// UnmarshalYAML accepts the short (sequence) and long (can_claim mapping) forms.
func (c *Capability) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		return node.Decode(&c.CanClaim)
	case yaml.MappingNode:
		var long struct {
			CanClaim []string `yaml:"can_claim"`
		}
		if err := node.Decode(&long); err != nil {
			return err
		}
		c.CanClaim = long.CanClaim
		return nil
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			c.CanClaim = nil
			return nil
		}
	}
	return fmt.Errorf("line %d: capability must be a list of claim types or a can_claim mapping", node.Line)
}

// MarshalYAML always writes the short form.
func (c Capability) MarshalYAML() (interface{}, error) {
	if c.CanClaim == nil {
		return []string{}, nil
	}
	return c.CanClaim, nil
}

// Validate checks the document and applies defaults.
func (c *Config) Validate() error {
	if c.Version != SupportedVersion {
		return fmt.Errorf("unsupported version %q (expected %q)", c.Version, SupportedVersion)
	}

	if len(c.Capabilities) == 0 {
		return fmt.Errorf("capabilities section cannot be empty")
	}

	allowed := make(map[string]map[claim.Type]bool, len(c.Capabilities))
	for producer, capability := range c.Capabilities {
		if producer == "" {
			return fmt.Errorf("capabilities: producer name cannot be empty")
		}
		set := make(map[claim.Type]bool, len(capability.CanClaim))
		for _, name := range capability.CanClaim {
			t, err := claim.ParseType(name)
			if err != nil {
				return fmt.Errorf("capabilities.%s: %w", producer, err)
			}
			if set[t] {
				return fmt.Errorf("capabilities.%s: claim type %q listed twice", producer, name)
			}
			set[t] = true
		}
		allowed[producer] = set
	}

	if c.Approval != nil {
		for action, required := range c.Approval.RequiredFields {
			if action == "" {
				return fmt.Errorf("approval.required_fields: action name cannot be empty")
			}
			for _, field := range required {
				if _, ok := claim.TypeForField(field); !ok {
					return fmt.Errorf("approval.required_fields.%s: unknown field %q", action, field)
				}
			}
		}
	}

	if c.Controller == nil {
		c.Controller = &ControllerConfig{}
	}
	if c.Controller.CallTimeout == nil {
		d := defaultCallTimeout
		c.Controller.CallTimeout = &d
	} else if *c.Controller.CallTimeout < 0 {
		return fmt.Errorf("controller.call_timeout must be >= 0, got %s", *c.Controller.CallTimeout)
	}
	callTimeout := *c.Controller.CallTimeout
	if c.Controller.LockTTL == nil {
		d := max(defaultLockTTL, lockTTLFactor*callTimeout)
		c.Controller.LockTTL = &d
	} else if *c.Controller.LockTTL <= 0 {
		return fmt.Errorf("controller.lock_ttl must be > 0, got %s", *c.Controller.LockTTL)
	} else if *c.Controller.LockTTL < lockedCalls*callTimeout {
		return fmt.Errorf("controller.lock_ttl %s is shorter than the %d call timeouts a run makes under the lock (%s)",
			*c.Controller.LockTTL, lockedCalls, lockedCalls*callTimeout)
	}

	c.allowed = allowed
	return nil
}

// Allows reports whether producer may assert claims of type t.
// Producers absent from the table may assert nothing.
func (c *Config) Allows(producer string, t claim.Type) bool {
	return c.allowed[producer][t]
}

// Allowed returns the claim types producer may assert, in canonical order.
func (c *Config) Allowed(producer string) []claim.Type {
	set := c.allowed[producer]
	var out []claim.Type
	for _, t := range claim.Types() {
		if set[t] {
			out = append(out, t)
		}
	}
	return out
}

// Producers returns every producer named in the capabilities table, sorted.
func (c *Config) Producers() []string {
	names := make([]string, 0, len(c.Capabilities))
	for name := range c.Capabilities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RequiredFields returns the extra output fields action needs before approval.
func (c *Config) RequiredFields(action string) []string {
	if c.Approval == nil {
		return nil
	}
	return c.Approval.RequiredFields[action]
}

// CallTimeout returns the per-call deadline for producers and validators; 0 means none.
func (c *Config) CallTimeout() time.Duration {
	if c.Controller == nil || c.Controller.CallTimeout == nil {
		return defaultCallTimeout
	}
	return *c.Controller.CallTimeout
}

// LockTTL returns the expiry for distributed scope locks.
func (c *Config) LockTTL() time.Duration {
	if c.Controller == nil || c.Controller.LockTTL == nil {
		return max(defaultLockTTL, lockTTLFactor*c.CallTimeout())
	}
	return *c.Controller.LockTTL
}

// Marshal renders the config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal governance config: %w", err)
	}
	return data, nil
}

// Parse decodes and validates a governance document.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid governance config: %w", err)
	}

	return &config, nil
}

// Load reads and validates the governance file at path.
// A missing file is an error; callers treat it as fatal.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read governance config: %w", err)
	}
	return Parse(data)
}
