package types

import "time"

// QueryColumn describes one output column of a query result
type QueryColumn struct {
	LogicalName string    `json:"logical_name"`
	Alias       string    `json:"alias,omitempty"`
	DataType    ValueKind `json:"data_type"`
	IsAggregate bool      `json:"is_aggregate,omitempty"`
	AggregateFn string    `json:"aggregate_fn,omitempty"`
	// LinkedAlias is set for columns sourced from a joined entity
	LinkedAlias string `json:"linked_alias,omitempty"`
}

// QueryResult is the terminal result envelope, produced once per logical
// query execution and immutable after construction.
type QueryResult struct {
	Columns      []QueryColumn `json:"columns"`
	Records      []*QueryRow   `json:"records"`
	RowCount     int64         `json:"row_count"`
	TotalCount   *int64        `json:"total_count,omitempty"`
	PagingCookie string        `json:"paging_cookie,omitempty"`
	NativeQuery  string        `json:"native_query,omitempty"`
	IsAggregate  bool          `json:"is_aggregate,omitempty"`
	Elapsed      time.Duration `json:"elapsed_ns"`
}
