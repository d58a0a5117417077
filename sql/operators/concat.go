package operators

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/veldt-labs/sqlbridge/types"
)

// ConcatenateNode chains the row streams of its branches in branch order.
// With pool capacity above one, branches execute in parallel and prefetch
// into per-branch buffers; rows within a branch always keep branch-internal
// order, and the output still drains buffers in branch order.
type ConcatenateNode struct {
	Branches []PlanNode

	pc *PlanContext

	// sequential mode
	idx    int
	opened bool

	// parallel mode
	parallel     bool
	chans        []chan branchResult
	cancel       context.CancelFunc
	group        *errgroup.Group
	dispatchDone chan struct{}
	cur          int
}

type branchResult struct {
	row *types.QueryRow
	err error
}

// NewConcatenate creates a concatenate node over ordered branches
func NewConcatenate(branches []PlanNode) *ConcatenateNode {
	return &ConcatenateNode{Branches: branches}
}

func (n *ConcatenateNode) Description() string {
	return fmt.Sprintf("Concatenate(%d branches)", len(n.Branches))
}

func (n *ConcatenateNode) EstimatedRows() int64 {
	var sum int64
	for _, b := range n.Branches {
		est := b.EstimatedRows()
		if est < 0 {
			return EstimateUnknown
		}
		sum += est
	}
	return sum
}

func (n *ConcatenateNode) Children() []PlanNode { return n.Branches }

func (n *ConcatenateNode) Open(pc *PlanContext) error {
	n.pc = pc
	n.idx = 0
	n.cur = 0
	n.opened = false
	n.parallel = pc.Parallelism() > 1 && len(n.Branches) > 1
	if n.parallel {
		n.startParallel()
	}
	return nil
}

func (n *ConcatenateNode) startParallel() {
	ctx := n.pc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	gctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	group, gctx := errgroup.WithContext(gctx)
	group.SetLimit(n.pc.Parallelism())
	n.group = group

	n.chans = make([]chan branchResult, len(n.Branches))
	for i := range n.Branches {
		n.chans[i] = make(chan branchResult, 64)
	}

	// group.Go blocks once the pool is saturated, and buffers only drain
	// after Open returns, so admission runs off the Open goroutine. The
	// pool admits branches in branch order, matching the drain order in
	// nextParallel.
	n.dispatchDone = make(chan struct{})
	go func() {
		defer close(n.dispatchDone)
		for i, branch := range n.Branches {
			out := n.chans[i]
			branch := branch
			// Branch contexts share the statistics object; its counters are
			// atomic for exactly this reason.
			bpc := *n.pc
			bpc.Ctx = gctx
			group.Go(func() error {
				defer close(out)
				if err := branch.Open(&bpc); err != nil {
					out <- branchResult{err: err}
					return nil
				}
				defer branch.Close()
				for {
					row, err := branch.Next()
					if err == EOF {
						return nil
					}
					result := branchResult{row: row, err: err}
					select {
					case out <- result:
					case <-gctx.Done():
						return nil
					}
					if err != nil {
						return nil
					}
				}
			})
		}
	}()
}

func (n *ConcatenateNode) Next() (*types.QueryRow, error) {
	if n.parallel {
		return n.nextParallel()
	}
	return n.nextSequential()
}

func (n *ConcatenateNode) nextSequential() (*types.QueryRow, error) {
	for n.idx < len(n.Branches) {
		if err := n.pc.Cancelled(); err != nil {
			return nil, err
		}
		branch := n.Branches[n.idx]
		if !n.opened {
			if err := branch.Open(n.pc); err != nil {
				return nil, err
			}
			n.opened = true
		}
		row, err := branch.Next()
		if err == EOF {
			branch.Close()
			n.idx++
			n.opened = false
			continue
		}
		return row, err
	}
	return nil, EOF
}

func (n *ConcatenateNode) nextParallel() (*types.QueryRow, error) {
	for n.cur < len(n.chans) {
		if err := n.pc.Cancelled(); err != nil {
			return nil, err
		}
		result, ok := <-n.chans[n.cur]
		if !ok {
			n.cur++
			continue
		}
		if result.err != nil {
			return nil, result.err
		}
		return result.row, nil
	}
	return nil, EOF
}

func (n *ConcatenateNode) Close() error {
	if n.parallel {
		if n.cancel != nil {
			n.cancel()
		}
		if n.dispatchDone != nil {
			<-n.dispatchDone
		}
		if n.group != nil {
			n.group.Wait()
		}
		return nil
	}
	if n.opened && n.idx < len(n.Branches) {
		return n.Branches[n.idx].Close()
	}
	return nil
}
