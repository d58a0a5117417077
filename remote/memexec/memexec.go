// Package memexec is an in-memory implementation of the remote collaborator
// contracts, used by tests and the demo server.
package memexec

import (
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/veldt-labs/sqlbridge/fetchxml"
	"github.com/veldt-labs/sqlbridge/remote"
	"github.com/veldt-labs/sqlbridge/types"
)

// Executor holds entity rows in memory and serves paged native queries
type Executor struct {
	mu       sync.RWMutex
	entities map[string][]*types.QueryRow
	pageSize int

	// ExecuteCount counts Execute calls, used by tests to assert EXPLAIN
	// never touches the executor
	ExecuteCount int
}

// New creates an empty in-memory executor
func New() *Executor {
	return &Executor{
		entities: make(map[string][]*types.QueryRow),
		pageSize: 500,
	}
}

// SetPageSize overrides the default page size
func (e *Executor) SetPageSize(n int) {
	e.pageSize = n
}

// Insert adds a row to an entity, assigning an id attribute when absent
func (e *Executor) Insert(entityName string, values map[string]types.QueryValue) uuid.UUID {
	e.mu.Lock()
	defer e.mu.Unlock()

	row := types.NewQueryRow(entityName)
	idAttr := entityName + "id"
	id := uuid.New()
	if v, ok := values[idAttr]; ok && v.Kind == types.KindGuid {
		id = v.Guid
	}
	row.Set(idAttr, types.GuidValue(id))
	for k, v := range values {
		if k == idAttr {
			continue
		}
		row.Set(k, v)
	}
	e.entities[entityName] = append(e.entities[entityName], row)
	return id
}

// Execute implements remote.QueryExecutor
func (e *Executor) Execute(ctx context.Context, fetchXMLText string, pagingCookie string, pageSize int) (*remote.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.ExecuteCount++
	e.mu.Unlock()

	var fetch fetchxml.Fetch
	if err := xml.Unmarshal([]byte(fetchXMLText), &fetch); err != nil {
		return nil, fmt.Errorf("invalid fetch xml: %w", err)
	}

	e.mu.RLock()
	source := e.entities[fetch.Entity.Name]
	e.mu.RUnlock()

	matched := make([]*types.QueryRow, 0, len(source))
	for _, row := range source {
		ok, err := matchFilter(row, fetch.Entity.Filter)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, row)
		}
	}

	if fetch.Aggregate {
		return aggregatePage(fetch, matched)
	}

	if fetch.Top > 0 && len(matched) > fetch.Top {
		matched = matched[:fetch.Top]
	}

	total := int64(len(matched))
	offset := 0
	if pagingCookie != "" {
		n, err := strconv.Atoi(pagingCookie)
		if err != nil {
			return nil, fmt.Errorf("invalid paging cookie %q", pagingCookie)
		}
		offset = n
	}
	if pageSize <= 0 {
		pageSize = e.pageSize
	}

	end := offset + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	var rows []*types.QueryRow
	if offset < len(matched) {
		for _, row := range matched[offset:end] {
			rows = append(rows, projectRow(row, fetch.Entity))
		}
	}

	page := &remote.Page{
		Rows:       rows,
		HasMore:    end < len(matched),
		TotalCount: &total,
	}
	if page.HasMore {
		page.PagingCookie = strconv.Itoa(end)
	}
	return page, nil
}

func aggregatePage(fetch fetchxml.Fetch, matched []*types.QueryRow) (*remote.Page, error) {
	row := types.NewQueryRow(fetch.Entity.Name)
	for _, attr := range fetch.Entity.Attributes {
		if attr.Aggregate != "count" {
			return nil, fmt.Errorf("unsupported aggregate %q", attr.Aggregate)
		}
		alias := attr.Alias
		if alias == "" {
			alias = "count"
		}
		row.Set(alias, types.NumberValue(float64(len(matched))))
	}
	total := int64(1)
	return &remote.Page{Rows: []*types.QueryRow{row}, TotalCount: &total}, nil
}

func projectRow(row *types.QueryRow, entity fetchxml.Entity) *types.QueryRow {
	if entity.AllAttributes != nil || len(entity.Attributes) == 0 {
		return row.Clone()
	}
	out := types.NewQueryRow(row.EntityName)
	for _, attr := range entity.Attributes {
		name := attr.Name
		if attr.Alias != "" {
			name = attr.Alias
		}
		out.Set(name, row.Get(attr.Name))
	}
	return out
}

func matchFilter(row *types.QueryRow, filter *fetchxml.Filter) (bool, error) {
	if filter == nil {
		return true, nil
	}
	isAnd := !strings.EqualFold(filter.Type, "or")

	check := func(ok bool, err error) (bool, bool, error) {
		if err != nil {
			return false, false, err
		}
		if isAnd && !ok {
			return false, true, nil
		}
		if !isAnd && ok {
			return true, true, nil
		}
		return ok, false, nil
	}

	for _, cond := range filter.Conditions {
		ok, done, err := check(matchCondition(row, cond))
		if err != nil || done {
			return ok, err
		}
	}
	for i := range filter.Filters {
		ok, done, err := check(matchFilter(row, &filter.Filters[i]))
		if err != nil || done {
			return ok, err
		}
	}
	return isAnd, nil
}

func matchCondition(row *types.QueryRow, cond fetchxml.Condition) (bool, error) {
	val := row.Get(cond.Attribute)

	switch cond.Operator {
	case fetchxml.OpNull:
		return val.IsNull(), nil
	case fetchxml.OpNotNull:
		return !val.IsNull(), nil
	case fetchxml.OpIn, fetchxml.OpNotIn:
		found := false
		for _, cv := range cond.Values {
			if !val.IsNull() && val.String() == cv {
				found = true
				break
			}
		}
		if cond.Operator == fetchxml.OpNotIn {
			return !val.IsNull() && !found, nil
		}
		return found, nil
	case fetchxml.OpLike:
		if val.IsNull() {
			return false, nil
		}
		return types.MatchLike(val.String(), cond.Value), nil
	case fetchxml.OpNotLike:
		if val.IsNull() {
			return false, nil
		}
		return !types.MatchLike(val.String(), cond.Value), nil
	}

	if val.IsNull() {
		return false, nil
	}
	cmp, err := val.Compare(types.StringValue(cond.Value))
	if err != nil {
		return false, err
	}
	switch cond.Operator {
	case fetchxml.OpEqual:
		return cmp == 0, nil
	case fetchxml.OpNotEqual:
		return cmp != 0, nil
	case fetchxml.OpLess:
		return cmp < 0, nil
	case fetchxml.OpLessEqual:
		return cmp <= 0, nil
	case fetchxml.OpGreater:
		return cmp > 0, nil
	case fetchxml.OpGreaterEqual:
		return cmp >= 0, nil
	}
	return false, fmt.Errorf("unsupported condition operator %q", cond.Operator)
}

// Create implements remote.MutationExecutor
func (e *Executor) Create(ctx context.Context, entityName string, values map[string]types.QueryValue) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}
	return e.Insert(entityName, values), nil
}

// Update implements remote.MutationExecutor
func (e *Executor) Update(ctx context.Context, entityName string, id uuid.UUID, values map[string]types.QueryValue) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	idAttr := entityName + "id"
	for _, row := range e.entities[entityName] {
		v := row.Get(idAttr)
		if v.Kind == types.KindGuid && v.Guid == id {
			for k, val := range values {
				row.Set(k, val)
			}
			return nil
		}
	}
	return fmt.Errorf("%s %s not found", entityName, id)
}

// Delete implements remote.MutationExecutor
func (e *Executor) Delete(ctx context.Context, entityName string, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	idAttr := entityName + "id"
	rows := e.entities[entityName]
	for i, row := range rows {
		v := row.Get(idAttr)
		if v.Kind == types.KindGuid && v.Guid == id {
			e.entities[entityName] = append(rows[:i], rows[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%s %s not found", entityName, id)
}
