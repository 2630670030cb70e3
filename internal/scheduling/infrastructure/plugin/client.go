package plugin

import (
	"fmt"
	"os/exec"

	"github.com/hashicorp/go-hclog"
	hplugin "github.com/hashicorp/go-plugin"
)

// Dispense launches cmd as a scheduler backend plugin process and returns
// an RPC-backed SchedulerBackend. The returned shutdown func must be
// called once the backend is no longer needed, to terminate the child
// process. On error the child process has already been killed and the
// returned func is nil.
func Dispense(cmd *exec.Cmd, logger hclog.Logger) (SchedulerBackend, func(), error) {
	if logger == nil {
		logger = hclog.New(&hclog.LoggerOptions{Name: "scheduler-plugin", Level: hclog.Warn})
	}

	client := hplugin.NewClient(&hplugin.ClientConfig{
		HandshakeConfig:  HandshakeConfig,
		Plugins:          PluginMap,
		Cmd:              cmd,
		Logger:           logger,
		AllowedProtocols: []hplugin.Protocol{hplugin.ProtocolNetRPC},
	})
	shutdown := client.Kill

	rpcClient, err := client.Client()
	if err != nil {
		shutdown()
		return nil, nil, fmt.Errorf("scheduling: starting scheduler plugin: %w", err)
	}

	raw, err := rpcClient.Dispense("scheduler")
	if err != nil {
		shutdown()
		return nil, nil, fmt.Errorf("scheduling: dispensing scheduler plugin: %w", err)
	}

	backend, ok := raw.(SchedulerBackend)
	if !ok {
		shutdown()
		return nil, nil, fmt.Errorf("scheduling: scheduler plugin returned %T, want SchedulerBackend", raw)
	}
	return backend, shutdown, nil
}
