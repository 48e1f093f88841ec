package comm

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// mailboxDepth bounds how many undelivered payloads a rank pair can have in
// flight. The construction phases exchange at most one message per pair per
// protocol step, so a small buffer is enough to keep paired sends from
// deadlocking.
const mailboxDepth = 8

// localGroup connects ranks within one process through a mesh of buffered
// channels, one per ordered rank pair.
type localGroup struct {
	size int
	mail [][]chan any
}

// localComm is one rank's endpoint into a localGroup.
type localComm struct {
	group *localGroup
	rank  int
}

// NewLocalGroup returns one Comm per rank, all connected to each other
// within this process. Used by tests and single-host runs.
func NewLocalGroup(size int) []Comm {
	if size <= 0 {
		panic(errors.Errorf("invalid group size %d", size))
	}
	group := &localGroup{size: size, mail: make([][]chan any, size)}
	for from := range group.mail {
		group.mail[from] = make([]chan any, size)
		for to := range group.mail[from] {
			group.mail[from][to] = make(chan any, mailboxDepth)
		}
	}
	comms := make([]Comm, size)
	for rank := range comms {
		comms[rank] = &localComm{group: group, rank: rank}
	}
	return comms
}

func (c *localComm) Rank() int {
	return c.rank
}

func (c *localComm) Size() int {
	return c.group.size
}

func (c *localComm) Send(ctx context.Context, to int, payload any) error {
	if err := c.checkRank(to); err != nil {
		return err
	}
	select {
	case c.group.mail[c.rank][to] <- payload:
		return nil
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "rank %d sending to rank %d", c.rank, to)
	}
}

func (c *localComm) Recv(ctx context.Context, from int) (any, error) {
	if err := c.checkRank(from); err != nil {
		return nil, err
	}
	select {
	case payload := <-c.group.mail[from][c.rank]:
		return payload, nil
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "rank %d receiving from rank %d", c.rank, from)
	}
}

func (c *localComm) SendRecv(ctx context.Context, peer int, payload any) (any, error) {
	if peer == c.rank {
		return payload, nil
	}
	if err := c.Send(ctx, peer, payload); err != nil {
		return nil, err
	}
	return c.Recv(ctx, peer)
}

func (c *localComm) Broadcast(ctx context.Context, root int, payload any) (any, error) {
	if err := c.checkRank(root); err != nil {
		return nil, err
	}
	if c.rank != root {
		return c.Recv(ctx, root)
	}
	for to := 0; to < c.group.size; to++ {
		if to == root {
			continue
		}
		if err := c.Send(ctx, to, payload); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

func (c *localComm) AllGather(ctx context.Context, payload any) ([]any, error) {
	for to := 0; to < c.group.size; to++ {
		if to == c.rank {
			continue
		}
		if err := c.Send(ctx, to, payload); err != nil {
			return nil, err
		}
	}
	gathered := make([]any, c.group.size)
	gathered[c.rank] = payload
	for from := 0; from < c.group.size; from++ {
		if from == c.rank {
			continue
		}
		received, err := c.Recv(ctx, from)
		if err != nil {
			return nil, err
		}
		gathered[from] = received
	}
	return gathered, nil
}

func (c *localComm) Alltoall(ctx context.Context, payloads []any) ([]any, error) {
	if len(payloads) != c.group.size {
		return nil, errors.Errorf("rank %d passed %d payloads to all-to-all over %d ranks", c.rank, len(payloads), c.group.size)
	}
	for to := 0; to < c.group.size; to++ {
		if to == c.rank {
			continue
		}
		if err := c.Send(ctx, to, payloads[to]); err != nil {
			return nil, err
		}
	}
	received := make([]any, c.group.size)
	received[c.rank] = payloads[c.rank]
	for from := 0; from < c.group.size; from++ {
		if from == c.rank {
			continue
		}
		payload, err := c.Recv(ctx, from)
		if err != nil {
			return nil, err
		}
		received[from] = payload
	}
	return received, nil
}

// Barrier gathers a token on rank 0 and releases everyone with a broadcast.
func (c *localComm) Barrier(ctx context.Context) error {
	type barrierToken struct{}
	if c.rank == 0 {
		for from := 1; from < c.group.size; from++ {
			if _, err := RecvAs[barrierToken](ctx, c, from); err != nil {
				return err
			}
		}
	} else if err := c.Send(ctx, 0, barrierToken{}); err != nil {
		return err
	}
	_, err := BroadcastAs(ctx, c, 0, barrierToken{})
	return err
}

func (c *localComm) checkRank(rank int) error {
	if rank < 0 || rank >= c.group.size {
		return errors.Errorf("rank %d is outside the group of size %d", rank, c.group.size)
	}
	return nil
}

// RunGroup runs fn once per rank of a fresh local group, each on its own
// goroutine, and combines the per-rank errors. Construction runs to
// completion as a batch; any rank failing makes the whole run fail.
func RunGroup(ctx context.Context, size int, fn func(ctx context.Context, c Comm) error) error {
	comms := NewLocalGroup(size)
	errs := make([]error, size)

	var wg sync.WaitGroup
	wg.Add(size)
	for rank := range comms {
		rankCopy := rank
		utils.PanicCapturingGo(func() {
			defer wg.Done()
			errs[rankCopy] = fn(ctx, comms[rankCopy])
		})
	}
	wg.Wait()
	return multierr.Combine(errs...)
}
