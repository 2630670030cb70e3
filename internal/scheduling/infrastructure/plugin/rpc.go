package plugin

import (
	"net/rpc"

	hplugin "github.com/hashicorp/go-plugin"
)

// SchedulerBackend is implemented by the out-of-process scheduler
// plugin's own host-side stub. It never sees a *domain.Model directly:
// everything crossing the process boundary is the plain wire snapshot in
// snapshot.go, because net/rpc's gob codec cannot carry the domain
// package's unexported fields.
type SchedulerBackend interface {
	Solve(req SolveRequest) (SolveResponse, error)
}

// SchedulerPlugin is the go-plugin Plugin implementation for the CP-SAT
// scheduler backend, using net/rpc transport rather than gRPC: this
// module has no protoc-generated stubs to build against, so the legacy
// net/rpc transport is the one go-plugin offers without code generation.
type SchedulerPlugin struct {
	// Impl is the concrete backend; only set on the plugin process side.
	Impl SchedulerBackend
}

// Server is called on the plugin process to expose Impl over net/rpc.
func (p *SchedulerPlugin) Server(*hplugin.MuxBroker) (interface{}, error) {
	return &schedulerRPCServer{impl: p.Impl}, nil
}

// Client is called on the host process to obtain an RPC-backed
// SchedulerBackend stub.
func (p *SchedulerPlugin) Client(_ *hplugin.MuxBroker, client *rpc.Client) (interface{}, error) {
	return &schedulerRPCClient{client: client}, nil
}

type schedulerRPCServer struct {
	impl SchedulerBackend
}

func (s *schedulerRPCServer) Solve(req SolveRequest, resp *SolveResponse) error {
	out, err := s.impl.Solve(req)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

type schedulerRPCClient struct {
	client *rpc.Client
}

func (c *schedulerRPCClient) Solve(req SolveRequest) (SolveResponse, error) {
	var resp SolveResponse
	if err := c.client.Call("Plugin.Solve", req, &resp); err != nil {
		return SolveResponse{}, err
	}
	return resp, nil
}
