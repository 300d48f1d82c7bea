package policy

// Order lifecycle states.
const (
	OrderCreated   State = "created"
	OrderPaid      State = "paid"
	OrderShipped   State = "shipped"
	OrderDelivered State = "delivered"
	OrderCancelled State = "cancelled"
)

// Connection lifecycle states.
const (
	ConnDisconnected  State = "disconnected"
	ConnConnecting    State = "connecting"
	ConnConnected     State = "connected"
	ConnDisconnecting State = "disconnecting"
)

// Door states.
const (
	DoorLocked   State = "locked"
	DoorUnlocked State = "unlocked"
)

// Order returns the order lifecycle policy: created -> paid -> shipped ->
// delivered, with cancellation possible until shipment. Delivered and
// cancelled are terminal, which is what makes a refund after delivery
// structurally impossible.
func Order() *Policy {
	p, err := NewBuilder().
		AddState(OrderCreated, OrderPaid, OrderCancelled).
		AddState(OrderPaid, OrderShipped, OrderCancelled).
		AddState(OrderShipped, OrderDelivered).
		AddState(OrderDelivered).
		AddState(OrderCancelled).
		Build()
	if err != nil {
		panic(err) // static table, cannot fail
	}

	return p
}

// Connection returns the connection lifecycle policy. It is an infinite
// machine: no terminal state, connections cycle forever.
func Connection() *Policy {
	p, err := NewBuilder().
		AddState(ConnDisconnected, ConnConnecting).
		AddState(ConnConnecting, ConnConnected, ConnDisconnected).
		AddState(ConnConnected, ConnDisconnecting).
		AddState(ConnDisconnecting, ConnDisconnected).
		Build()
	if err != nil {
		panic(err) // static table, cannot fail
	}

	return p
}

// Door returns the two-state lock policy used by the door examples.
func Door() *Policy {
	p, err := NewBuilder().
		AddState(DoorLocked, DoorUnlocked).
		AddState(DoorUnlocked, DoorLocked).
		Build()
	if err != nil {
		panic(err) // static table, cannot fail
	}

	return p
}
