package ttsengine

import "fmt"

// Build constructs an Engine by name ("dummy", "local_cli", "remote_rpc").
// cliCfg and rpcCfg are ignored unless the corresponding name is selected.
func Build(name string, cliCfg LocalCLIConfig, rpcCfg RemoteRPCConfig) (Engine, error) {
	switch name {
	case "", "dummy":
		return &DummyEngine{}, nil
	case "local_cli":
		return NewLocalCLIEngine(cliCfg)
	case "remote_rpc":
		return NewRemoteRPCEngine(rpcCfg)
	default:
		return nil, fmt.Errorf("ttsengine: unknown engine %q", name)
	}
}

// Readiness is implemented by engines that can report backend-existence
// fields for the /healthz endpoint.
type Readiness interface {
	ReadinessFields() map[string]any
}
