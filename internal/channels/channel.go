// Package channels defines the chat front-end adapter contract: the
// chat front-end is treated as an external collaborator behind a
// named interface, kept deliberately thin.
package channels

import "context"

// Channel is the contract any chat front-end adapter satisfies.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
}

// BaseChannel holds the state common to every adapter: an operator
// allow-list and a running flag. A single-operator service has no DM/group
// policy matrix to carry over from a multi-tenant chat bot — one allow-list
// is the whole access model.
type BaseChannel struct {
	name      string
	running   bool
	allowList []string
}

func NewBaseChannel(name string, allowList []string) *BaseChannel {
	return &BaseChannel{name: name, allowList: allowList}
}

func (c *BaseChannel) Name() string          { return c.name }
func (c *BaseChannel) IsRunning() bool       { return c.running }
func (c *BaseChannel) SetRunning(running bool) { c.running = running }

// IsAllowed reports whether senderID is on the operator allow-list. An
// empty allow-list means every sender is allowed (useful for local/dev
// runs where the operator hasn't set one up yet).
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}
	for _, id := range c.allowList {
		if id == senderID {
			return true
		}
	}
	return false
}

// Truncate shortens s to maxLen, appending "..." if it was cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
