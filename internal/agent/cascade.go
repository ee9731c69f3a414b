package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/ShayCichocki/weave/pkg/models"
)

var (
	// ErrUnknownAgent reports a step naming a backend that is not registered.
	ErrUnknownAgent = errors.New("unknown agent")
	// ErrNoAgentAvailable reports that no candidate backend can serve "auto".
	ErrNoAgentAvailable = errors.New("no agent available")
)

// Cascade resolves a step's agent name to a backend. Candidates are kept
// in preference order; the "auto" name selects the first available one.
type Cascade struct {
	agents []Agent
	cache  *AvailabilityCache
}

// NewCascade creates a resolver over the given backends in preference order.
// A nil cache gets a fresh one with the default TTL.
func NewCascade(cache *AvailabilityCache, agents ...Agent) *Cascade {
	if cache == nil {
		cache = NewAvailabilityCache(0)
	}
	return &Cascade{agents: agents, cache: cache}
}

// Agents returns the candidate backends in preference order.
func (c *Cascade) Agents() []Agent {
	return c.agents
}

// Resolve maps an agent name to a backend. The empty name and
// models.AgentAuto both cascade to the first available candidate; any
// other name must match a registered backend exactly.
func (c *Cascade) Resolve(ctx context.Context, name string) (Agent, error) {
	if name == "" || name == models.AgentAuto {
		for _, a := range c.agents {
			if c.cache.Check(ctx, a) {
				return a, nil
			}
		}
		return nil, ErrNoAgentAvailable
	}

	for _, a := range c.agents {
		if a.Name() == name {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, name)
}
