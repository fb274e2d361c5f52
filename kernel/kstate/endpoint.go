package kstate

const (
	// maxEndpoints is the fixed capacity of the endpoint table. Endpoints
	// are created at init; their set never changes afterwards.
	maxEndpoints = 2

	// noWaiter is the recv-waiter sentinel for an endpoint nobody is
	// receiving on.
	noWaiter = -1
)

// Endpoint is a rendezvous object for synchronous IPC. It holds at most one
// receive waiter plus bounded sets of parked senders and reply waiters. All
// three refer to tasks by table index.
type Endpoint struct {
	ID EndpointID

	// recvWaiter is the index of the task blocked in receive on this
	// endpoint, or noWaiter.
	recvWaiter int

	sendQueue  taskQueue
	replyQueue taskQueue

	// owner is the task allowed to close the endpoint. Only armed by the
	// endpoint close demo; ownerless endpoints live forever.
	owner    TaskID
	hasOwner bool

	// closed endpoints fail-safe all traffic.
	closed bool
}

// newEndpoint returns an initialized endpoint slot.
func newEndpoint(id EndpointID) Endpoint {
	return Endpoint{ID: id, recvWaiter: noWaiter}
}

// validEndpoint reports whether ep addresses an endpoint slot. Invalid
// handles are a fail-safe condition at the IPC boundary, never a crash.
func (k *KernelState) validEndpoint(ep EndpointID) bool {
	return ep >= 0 && int(ep) < len(k.endpoints)
}
