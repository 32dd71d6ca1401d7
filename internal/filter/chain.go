package filter

import "firestige.xyz/xdump/internal/core"

// Hook is an extension point consulted for every frame that passed the port check.
type Hook interface {
	Accept(frame []byte, decoded core.DecodedFrame) bool
}

// HookFunc adapts a function to Hook.
type HookFunc func(frame []byte, decoded core.DecodedFrame) bool

func (fn HookFunc) Accept(frame []byte, decoded core.DecodedFrame) bool {
	return fn(frame, decoded)
}

// Chain runs hooks in order; a frame is accepted only if every hook accepts it.
type Chain struct {
	hooks []Hook
}

func NewChain(hooks ...Hook) *Chain {
	all := make([]Hook, len(hooks))
	copy(all, hooks)
	return &Chain{hooks: all}
}

func (c *Chain) Accept(frame []byte, decoded core.DecodedFrame) bool {
	for _, h := range c.hooks {
		if !h.Accept(frame, decoded) {
			return false
		}
	}
	return true
}

func (c *Chain) Len() int {
	return len(c.hooks)
}
