// Package comm defines the message-passing fabric the tree construction
// phases run on. A fixed group of ranks coordinates exclusively through the
// Comm interface; no memory is shared between ranks. The package ships an
// in-process implementation for tests and single-host runs, while cluster
// deployments substitute their own fabric.
package comm

import (
	"context"

	"github.com/pkg/errors"
)

// Comm is one rank's endpoint into the process group. All operations block
// until the involved peers participate; collective operations must be
// entered by every rank in the group in the same order. A payload passed to
// a send transfers ownership to the receiver and must not be retained by the
// sender.
type Comm interface {
	// Rank returns this process's index within the group.
	Rank() int

	// Size returns the number of ranks in the group.
	Size() int

	// Send delivers a payload to the given rank.
	Send(ctx context.Context, to int, payload any) error

	// Recv blocks until a payload from the given rank arrives.
	Recv(ctx context.Context, from int) (any, error)

	// SendRecv exchanges payloads with a partner rank. Both sides must call
	// it with each other as the peer.
	SendRecv(ctx context.Context, peer int, payload any) (any, error)

	// Broadcast distributes the root's payload to every rank. Non-root
	// callers pass nil and receive the root's payload.
	Broadcast(ctx context.Context, root int, payload any) (any, error)

	// AllGather collects one payload from every rank onto every rank, in
	// rank order.
	AllGather(ctx context.Context, payload any) ([]any, error)

	// Alltoall sends payloads[i] to rank i and returns the payloads received
	// from each rank, in rank order. len(payloads) must equal Size.
	Alltoall(ctx context.Context, payloads []any) ([]any, error)

	// Barrier blocks until every rank has entered it.
	Barrier(ctx context.Context) error
}

// RecvAs receives from the given rank and asserts the payload type. A type
// mismatch is a programming error in the calling protocol.
func RecvAs[T any](ctx context.Context, c Comm, from int) (T, error) {
	var zero T
	payload, err := c.Recv(ctx, from)
	if err != nil {
		return zero, err
	}
	typed, ok := payload.(T)
	if !ok {
		return zero, errors.Errorf("rank %d received %T from rank %d, expected %T", c.Rank(), payload, from, zero)
	}
	return typed, nil
}

// SendRecvAs exchanges a typed payload with a partner rank.
func SendRecvAs[T any](ctx context.Context, c Comm, peer int, payload T) (T, error) {
	var zero T
	received, err := c.SendRecv(ctx, peer, payload)
	if err != nil {
		return zero, err
	}
	typed, ok := received.(T)
	if !ok {
		return zero, errors.Errorf("rank %d received %T from rank %d, expected %T", c.Rank(), received, peer, zero)
	}
	return typed, nil
}

// BroadcastAs distributes a typed payload from the root to every rank.
func BroadcastAs[T any](ctx context.Context, c Comm, root int, payload T) (T, error) {
	var zero T
	var in any
	if c.Rank() == root {
		in = payload
	}
	received, err := c.Broadcast(ctx, root, in)
	if err != nil {
		return zero, err
	}
	typed, ok := received.(T)
	if !ok {
		return zero, errors.Errorf("rank %d received %T from broadcast root %d, expected %T", c.Rank(), received, root, zero)
	}
	return typed, nil
}

// AllGatherAs collects one typed payload per rank onto every rank.
func AllGatherAs[T any](ctx context.Context, c Comm, payload T) ([]T, error) {
	gathered, err := c.AllGather(ctx, payload)
	if err != nil {
		return nil, err
	}
	typed := make([]T, len(gathered))
	for i, g := range gathered {
		v, ok := g.(T)
		if !ok {
			return nil, errors.Errorf("rank %d gathered %T from rank %d, expected %T", c.Rank(), g, i, v)
		}
		typed[i] = v
	}
	return typed, nil
}

// AlltoallAs exchanges one typed payload with every rank.
func AlltoallAs[T any](ctx context.Context, c Comm, payloads []T) ([]T, error) {
	anys := make([]any, len(payloads))
	for i, p := range payloads {
		anys[i] = p
	}
	received, err := c.Alltoall(ctx, anys)
	if err != nil {
		return nil, err
	}
	typed := make([]T, len(received))
	for i, g := range received {
		v, ok := g.(T)
		if !ok {
			return nil, errors.Errorf("rank %d received %T from rank %d, expected %T", c.Rank(), g, i, v)
		}
		typed[i] = v
	}
	return typed, nil
}
