// Package plugin defines the CP-SAT scheduler's pluggable backend
// boundary: the solver runs in-process by default, but can be swapped for
// an out-of-process implementation loaded with hashicorp/go-plugin over
// net/rpc, wrapped in a circuit breaker so a misbehaving backend falls
// back to the in-process solver instead of failing every planning call.
package plugin

import (
	hplugin "github.com/hashicorp/go-plugin"
)

// HandshakeConfig verifies the host and the scheduler backend plugin were
// built against compatible protocol versions before any RPC is attempted.
var HandshakeConfig = hplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "HYBRIDSCHED_SCHEDULER_PLUGIN",
	MagicCookieValue: "hybridsched-scheduler-v1",
}

// PluginMap is the single named plugin this host dispenses: one
// out-of-process CP-SAT backend.
var PluginMap = map[string]hplugin.Plugin{
	"scheduler": &SchedulerPlugin{},
}
