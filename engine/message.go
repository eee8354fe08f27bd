// Package engine implements the step-synchronous simulation core: the
// link map, delivery buffer, stats, actor context, and the Engine
// itself.
package engine

// AgentID is a dense integer identifier in [0, N) for a simulated
// agent.
type AgentID = int

// Tick is the engine's logical clock. It starts at 0 and only moves
// forward.
type Tick = uint64

// RequestMessage is the application-level work item the engine
// delivers. Id is assigned by the engine at injection time and is
// unique and dense.
type RequestMessage struct {
	ID    uint32
	From  AgentID
	To    AgentID
	Start Tick
}

// Data is the tagged payload of an Envelope: either a final-delivery
// Request report or an opaque protocol Comm payload.
//
// IsRequest tells which of Request/Payload is meaningful. A zero Data
// reads as a Comm carrying T's zero value, so build Data with Req or
// Comm rather than directly.
type Data[T any] struct {
	request RequestMessage
	comm    T
	isReq   bool
}

// Req wraps a RequestMessage as envelope data.
func Req[T any](r RequestMessage) Data[T] {
	return Data[T]{request: r, isReq: true}
}

// Comm wraps a protocol payload as envelope data.
func Comm[T any](payload T) Data[T] {
	return Data[T]{comm: payload}
}

// IsRequest reports whether this data is a final-delivery report.
func (d Data[T]) IsRequest() bool { return d.isReq }

// Request returns the wrapped RequestMessage. Only meaningful when
// IsRequest is true.
func (d Data[T]) Request() RequestMessage { return d.request }

// Payload returns the wrapped protocol payload. Only meaningful when
// IsRequest is false.
func (d Data[T]) Payload() T { return d.comm }

// Envelope is a message in transit between two agents, or between an
// agent and the engine.
type Envelope[T any] struct {
	From AgentID
	To   AgentID
	Data Data[T]
}
