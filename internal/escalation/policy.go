// ABOUTME: Agent assignment policies for escalated conversations
// ABOUTME: Default picks the longest-tenured active agent

package escalation

import (
	"context"

	"github.com/bosar/bosar-gateway/internal/store"
)

// AssignmentPolicy chooses which staff member receives an escalated
// conversation. Returns store.ErrNotFound when no agent is available.
type AssignmentPolicy interface {
	Select(ctx context.Context) (*store.StaffAccount, error)
}

// AgentFinder is the store lookup a policy needs.
type AgentFinder interface {
	FindAvailableAgent(ctx context.Context) (*store.StaffAccount, error)
}

// FirstAvailablePolicy assigns the active agent with the oldest account.
// Deterministic and good enough until load-based routing exists.
type FirstAvailablePolicy struct {
	finder AgentFinder
}

// NewFirstAvailablePolicy creates the default policy.
func NewFirstAvailablePolicy(finder AgentFinder) *FirstAvailablePolicy {
	return &FirstAvailablePolicy{finder: finder}
}

// Select returns the first available active agent.
func (p *FirstAvailablePolicy) Select(ctx context.Context) (*store.StaffAccount, error) {
	return p.finder.FindAvailableAgent(ctx)
}
