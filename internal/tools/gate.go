package tools

import "sync/atomic"

// ThinkingGate is raised while a tool call is in flight. It is advisory:
// nothing blocks on it, and concurrent calls share one flag, so the last
// clear wins.
type ThinkingGate struct {
	flag atomic.Bool
}

func (g *ThinkingGate) IsThinking() bool {
	return g.flag.Load()
}

func (g *ThinkingGate) set() {
	g.flag.Store(true)
}

func (g *ThinkingGate) clear() {
	g.flag.Store(false)
}
