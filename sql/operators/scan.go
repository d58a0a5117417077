package operators

import (
	"fmt"
	"time"

	qerrors "github.com/veldt-labs/sqlbridge/errors"
	"github.com/veldt-labs/sqlbridge/types"
)

// VirtualColumn is a derived projection of a foreign-key attribute: the
// execution layer requests the underlying attribute and materializes the
// display value under the derived name.
type VirtualColumn struct {
	Output string
	Source string
}

// FetchScanNode reads rows from the remote store by executing the native
// query and walking its pages sequentially. Each page's continuation cookie
// depends on the prior page, so paging is strictly ordered.
type FetchScanNode struct {
	EntityName string
	FetchXML   string
	// RowCap bounds rows produced; EstimateUnknown means unlimited
	RowCap   int64
	Estimate int64
	Virtual  []VirtualColumn

	pc       *PlanContext
	cookie   string
	page     []*types.QueryRow
	pageIdx  int
	hasMore  bool
	fetched  bool
	produced int64
	total    *int64
}

// NewFetchScan creates a scan node over a rendered native query
func NewFetchScan(entityName, fetchXML string) *FetchScanNode {
	return &FetchScanNode{
		EntityName: entityName,
		FetchXML:   fetchXML,
		RowCap:     EstimateUnknown,
		Estimate:   EstimateUnknown,
	}
}

func (n *FetchScanNode) Description() string {
	return fmt.Sprintf("FetchScan(%s)", n.EntityName)
}

func (n *FetchScanNode) EstimatedRows() int64 { return n.Estimate }

func (n *FetchScanNode) Children() []PlanNode { return nil }

func (n *FetchScanNode) Open(pc *PlanContext) error {
	n.pc = pc
	n.cookie = ""
	n.page = nil
	n.pageIdx = 0
	n.hasMore = false
	n.fetched = false
	n.produced = 0
	pc.reportPhase("scan", n.EntityName)
	return nil
}

func (n *FetchScanNode) Next() (*types.QueryRow, error) {
	if n.RowCap >= 0 && n.produced >= n.RowCap {
		return nil, EOF
	}

	for n.pageIdx >= len(n.page) {
		if n.fetched && !n.hasMore {
			return nil, EOF
		}
		if err := n.fetchPage(); err != nil {
			return nil, err
		}
	}

	row := n.page[n.pageIdx]
	n.pageIdx++
	n.produced++
	n.materializeVirtual(row)

	if stats := n.pc.Stats; stats != nil {
		stats.RowsRead.Add(1)
	}
	return row, nil
}

func (n *FetchScanNode) fetchPage() error {
	// Cancellation is observed at every page boundary
	if err := n.pc.Cancelled(); err != nil {
		return err
	}

	start := time.Now()
	page, err := n.pc.Executor.Execute(n.pc.Ctx, n.FetchXML, n.cookie, n.pc.PageSize)
	if err != nil {
		if cancelled := n.pc.Cancelled(); cancelled != nil {
			return cancelled
		}
		return qerrors.Wrap(err, qerrors.CodeExecutionFailed, n.Description())
	}

	n.fetched = true
	n.page = page.Rows
	n.pageIdx = 0
	n.cookie = page.PagingCookie
	n.hasMore = page.HasMore
	if page.TotalCount != nil {
		n.total = page.TotalCount
	}

	if stats := n.pc.Stats; stats != nil {
		stats.PagesFetched.Add(1)
		timeNode(stats, n.Description(), start, int64(len(page.Rows)))
	}
	total := int64(-1)
	if n.total != nil {
		total = *n.total
	}
	n.pc.reportProgress(n.produced+int64(len(page.Rows)), total, n.EntityName)
	return nil
}

func (n *FetchScanNode) materializeVirtual(row *types.QueryRow) {
	for _, vc := range n.Virtual {
		if row.Has(vc.Output) {
			continue
		}
		source := row.Get(vc.Source)
		if source.IsNull() {
			row.Set(vc.Output, types.NullValue())
			continue
		}
		row.Set(vc.Output, types.StringValue(source.String()))
	}
}

func (n *FetchScanNode) Close() error {
	n.page = nil
	return nil
}

// PagingCookie is the continuation cookie after the last fetched page
func (n *FetchScanNode) PagingCookie() string { return n.cookie }

// TotalCount is the remote-reported total, when the store provided one
func (n *FetchScanNode) TotalCount() *int64 { return n.total }
