package sql

import (
	"github.com/veldt-labs/sqlbridge/types"
)

// Pos is a source position within the original SQL text
type Pos struct {
	Line   int
	Column int
}

// Statement is the closed set of statement variants
type Statement interface {
	stmtNode()
	Position() Pos
}

// Expression is the closed set of scalar expression variants
type Expression interface {
	exprNode()
	Position() Pos
}

// Condition is the closed set of predicate variants. Every condition carries
// an optional trailing comment preserved from the source text; it is
// cosmetic and never affects semantics.
type Condition interface {
	condNode()
	Position() Pos
}

// JoinType distinguishes the supported join forms
type JoinType string

const (
	JoinInner JoinType = "inner"
	JoinLeft  JoinType = "left"
)

// TableRef names a source table with an optional alias
type TableRef struct {
	Name  string
	Alias string
}

// SqlJoin ties a table reference to a join type and an equality predicate
// between two column references
type SqlJoin struct {
	Table    TableRef
	Type     JoinType
	LeftCol  *ColumnRef
	RightCol *ColumnRef
}

// SelectColumn is one projected column of a SELECT
type SelectColumn struct {
	Expr            Expression
	Alias           string
	TrailingComment string
}

// OrderByItem sorts the result by one column
type OrderByItem struct {
	Column *ColumnRef
	Desc   bool
}

// SetOperation chains one UNION arm onto a SELECT
type SetOperation struct {
	All    bool
	Select *SelectStatement
}

// SelectStatement is a single SELECT, possibly the head of a UNION chain
type SelectStatement struct {
	Pos      Pos
	Distinct bool
	Columns  []SelectColumn
	From     TableRef
	Joins    []SqlJoin
	Where    Condition
	GroupBy  []*ColumnRef
	Having   Condition
	OrderBy  []OrderByItem
	// Top is the row limit; 0 means unlimited
	Top int64
	// SetOps holds UNION arms in source order
	SetOps []SetOperation
}

func (*SelectStatement) stmtNode()       {}
func (s *SelectStatement) Position() Pos { return s.Pos }

// SetClause assigns one column in an UPDATE
type SetClause struct {
	Column string
	Value  Expression
}

// InsertStatement inserts literal rows into a table
type InsertStatement struct {
	Pos     Pos
	Table   TableRef
	Columns []string
	Rows    [][]Expression
}

func (*InsertStatement) stmtNode()       {}
func (s *InsertStatement) Position() Pos { return s.Pos }

// UpdateStatement mutates rows matching the WHERE clause
type UpdateStatement struct {
	Pos   Pos
	Table TableRef
	Set   []SetClause
	Where Condition
}

func (*UpdateStatement) stmtNode()       {}
func (s *UpdateStatement) Position() Pos { return s.Pos }

// DeleteStatement removes rows matching the WHERE clause
type DeleteStatement struct {
	Pos   Pos
	Table TableRef
	Where Condition
}

func (*DeleteStatement) stmtNode()       {}
func (s *DeleteStatement) Position() Pos { return s.Pos }

// BlockStatement is an ordered statement sequence
type BlockStatement struct {
	Pos        Pos
	Statements []Statement
}

func (*BlockStatement) stmtNode()       {}
func (s *BlockStatement) Position() Pos { return s.Pos }

// IfStatement executes Then when the condition holds, else Else when present
type IfStatement struct {
	Pos  Pos
	Cond Condition
	Then *BlockStatement
	Else *BlockStatement
}

func (*IfStatement) stmtNode()       {}
func (s *IfStatement) Position() Pos { return s.Pos }

// WhileStatement re-executes Body while the condition holds
type WhileStatement struct {
	Pos  Pos
	Cond Condition
	Body *BlockStatement
}

func (*WhileStatement) stmtNode()       {}
func (s *WhileStatement) Position() Pos { return s.Pos }

// ColumnRef references a column, optionally table-qualified or a wildcard
type ColumnRef struct {
	Pos      Pos
	Table    string
	Name     string
	Alias    string
	Wildcard bool
}

func (*ColumnRef) exprNode()       {}
func (e *ColumnRef) Position() Pos { return e.Pos }

// QualifiedName renders the reference as it appeared in the source
func (e *ColumnRef) QualifiedName() string {
	if e.Table != "" {
		return e.Table + "." + e.Name
	}
	return e.Name
}

// Literal is a typed constant
type Literal struct {
	Pos   Pos
	Value types.QueryValue
}

func (*Literal) exprNode()       {}
func (e *Literal) Position() Pos { return e.Pos }

// VariableRef references a script variable (@name)
type VariableRef struct {
	Pos  Pos
	Name string
}

func (*VariableRef) exprNode()       {}
func (e *VariableRef) Position() Pos { return e.Pos }

// AggregateExpr is an aggregate function application. A nil Column means
// COUNT(*).
type AggregateExpr struct {
	Pos      Pos
	Func     string
	Column   *ColumnRef
	Distinct bool
	Alias    string
}

func (*AggregateExpr) exprNode()       {}
func (e *AggregateExpr) Position() Pos { return e.Pos }

// BinaryExpr is an arithmetic expression over two operands
type BinaryExpr struct {
	Pos   Pos
	Op    string
	Left  Expression
	Right Expression
}

func (*BinaryExpr) exprNode()       {}
func (e *BinaryExpr) Position() Pos { return e.Pos }

// SubqueryExpr is a scalar subquery used as a value
type SubqueryExpr struct {
	Pos    Pos
	Select *SelectStatement
}

func (*SubqueryExpr) exprNode()       {}
func (e *SubqueryExpr) Position() Pos { return e.Pos }

// Comparison compares two expressions with a SQL operator
type Comparison struct {
	Pos             Pos
	Op              string
	Left            Expression
	Right           Expression
	TrailingComment string
}

func (*Comparison) condNode()       {}
func (c *Comparison) Position() Pos { return c.Pos }

// LikeCondition is a LIKE / NOT LIKE pattern match
type LikeCondition struct {
	Pos             Pos
	Left            Expression
	Pattern         Expression
	Not             bool
	TrailingComment string
}

func (*LikeCondition) condNode()       {}
func (c *LikeCondition) Position() Pos { return c.Pos }

// NullCondition is an IS NULL / IS NOT NULL test
type NullCondition struct {
	Pos             Pos
	Expr            Expression
	Not             bool
	TrailingComment string
}

func (*NullCondition) condNode()       {}
func (c *NullCondition) Position() Pos { return c.Pos }

// InCondition tests membership in a literal value list
type InCondition struct {
	Pos             Pos
	Expr            Expression
	Values          []Expression
	Not             bool
	TrailingComment string
}

func (*InCondition) condNode()       {}
func (c *InCondition) Position() Pos { return c.Pos }

// LogicalOp is the connective of a LogicalCondition
type LogicalOp string

const (
	LogicalAnd LogicalOp = "and"
	LogicalOr  LogicalOp = "or"
)

// LogicalCondition connects child conditions with AND / OR
type LogicalCondition struct {
	Pos             Pos
	Op              LogicalOp
	Conditions      []Condition
	TrailingComment string
}

func (*LogicalCondition) condNode()       {}
func (c *LogicalCondition) Position() Pos { return c.Pos }

// ExistsCondition is an EXISTS / NOT EXISTS subquery test
type ExistsCondition struct {
	Pos             Pos
	Select          *SelectStatement
	Not             bool
	TrailingComment string
}

func (*ExistsCondition) condNode()       {}
func (c *ExistsCondition) Position() Pos { return c.Pos }

// InSubqueryCondition tests membership in a subquery's result
type InSubqueryCondition struct {
	Pos             Pos
	Expr            Expression
	Select          *SelectStatement
	Not             bool
	TrailingComment string
}

func (*InSubqueryCondition) condNode()       {}
func (c *InSubqueryCondition) Position() Pos { return c.Pos }

// ExprCondition wraps an arbitrary expression used as a predicate
type ExprCondition struct {
	Pos             Pos
	Expr            Expression
	TrailingComment string
}

func (*ExprCondition) condNode()       {}
func (c *ExprCondition) Position() Pos { return c.Pos }
