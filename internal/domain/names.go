package domain

// Fixed store names. They must match across every instance and the operator tooling.
const (
	CounterKey           = "active_ws_connections"
	BroadcastChannel     = "broadcast_channel"
	FleetShutdownChannel = "shutdown_channel"
	InstancesKey         = "relay:instances"
	ReconcileLeaderKey   = "relay:reconcile:leader"
)

// FleetShutdownCommand is the payload the operator tool publishes on FleetShutdownChannel.
const FleetShutdownCommand = "shutdown"
