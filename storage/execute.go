package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/inputlayer/inputlayer/catalog"
	ilerrors "github.com/inputlayer/inputlayer/errors"
	"github.com/inputlayer/inputlayer/exec"
	"github.com/inputlayer/inputlayer/ir"
	"github.com/inputlayer/inputlayer/parser"
	"github.com/inputlayer/inputlayer/value"
)

// ExecResult is the uniform outcome of one Execute call: at most one of
// Query or Message is populated, depending on which statement kind ran
// (spec.md §6; a single external entry point dispatching over every
// surface-syntax statement kind).
type ExecResult struct {
	Query   *QueryResult
	Message string
}

// Execute runs exactly one statement of source against kgName (spec.md §4.2
// "Meta command" grammar plus inserts/deletes/rules/queries). A source
// string containing more than one statement is rejected — each Execute call
// is one line of a session, mirroring how the parser's own statement
// boundary (a trailing '.') is meant to be consumed interactively. Use
// ExecuteAll to run a multi-statement script (spec.md §6 "execute(source)").
func (e *Engine) Execute(kgName, source string) (*ExecResult, error) {
	stmts, err := parser.Parse(source)
	if err != nil {
		return nil, err
	}
	if len(stmts) != 1 {
		return nil, ilerrors.ErrInvalidArgument.New("Execute accepts exactly one statement at a time")
	}
	return e.executeStatement(kgName, stmts[0])
}

// ExecuteAll runs every statement parsed out of source, in order, returning
// one ExecResult per statement (spec.md §6 "parse and execute one or more
// statements"). A later statement still runs even if an earlier one in the
// batch produced a query result; execution stops at the first error.
func (e *Engine) ExecuteAll(kgName, source string) ([]*ExecResult, error) {
	stmts, err := parser.Parse(source)
	if err != nil {
		return nil, err
	}
	results := make([]*ExecResult, 0, len(stmts))
	for _, stmt := range stmts {
		res, err := e.executeStatement(kgName, stmt)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (e *Engine) executeStatement(kgName string, stmt parser.Statement) (*ExecResult, error) {
	switch stmt := stmt.(type) {
	case *parser.InsertStmt:
		rows, err := termRowsToValues(stmt.Rows)
		if err != nil {
			return nil, err
		}
		if err := e.InsertFacts(kgName, stmt.Relation, rows); err != nil {
			return nil, err
		}
		return &ExecResult{Message: fmt.Sprintf("inserted %d row(s) into %s", len(rows), stmt.Relation)}, nil

	case *parser.DeleteStmt:
		if stmt.Rule != nil {
			if err := e.DeleteByRule(kgName, stmt.Rule); err != nil {
				return nil, err
			}
			return &ExecResult{Message: "deleted matching rows from " + stmt.Rule.Head.Relation}, nil
		}
		rows, err := termRowsToValues(stmt.Rows)
		if err != nil {
			return nil, err
		}
		if err := e.DeleteFacts(kgName, stmt.Relation, rows); err != nil {
			return nil, err
		}
		return &ExecResult{Message: fmt.Sprintf("deleted %d row(s) from %s", len(rows), stmt.Relation)}, nil

	case *parser.RuleStmt:
		if !stmt.Persistent {
			res, err := e.evaluateSessionRule(kgName, stmt.Rule)
			if err != nil {
				return nil, err
			}
			return &ExecResult{Query: res}, nil
		}
		if err := e.RegisterRule(kgName, stmt.SourceText); err != nil {
			return nil, err
		}
		return &ExecResult{Message: "registered rule for " + stmt.Rule.Head.Relation}, nil

	case *parser.QueryStmt:
		res, err := e.queryGoal(kgName, stmt.Goal)
		if err != nil {
			return nil, err
		}
		return &ExecResult{Query: res}, nil

	case *parser.SchemaStmt:
		if err := e.declareSchema(kgName, stmt); err != nil {
			return nil, err
		}
		return &ExecResult{Message: "declared schema for " + stmt.Relation}, nil

	case *parser.MetaStmt:
		return e.executeMeta(kgName, stmt)

	default:
		return nil, ilerrors.ErrInvalidArgument.New("unsupported statement kind")
	}
}

func termRowsToValues(rows [][]parser.Term) ([][]value.Value, error) {
	out := make([][]value.Value, len(rows))
	for i, row := range rows {
		vs := make([]value.Value, len(row))
		for j, t := range row {
			if t.IsVar {
				return nil, ilerrors.ErrInvalidArgument.New("insert/delete rows must be ground (no variables)")
			}
			vs[j] = t.Const
		}
		out[i] = vs
	}
	return out, nil
}

// evaluateSessionRule builds and evaluates a non-persistent rule clause
// once against the current state, without registering it in the catalog
// (spec.md §9 "session rules are ad-hoc views evaluated once and discarded").
func (e *Engine) evaluateSessionRule(kgName string, rule *parser.Rule) (*QueryResult, error) {
	kg, err := e.lookupKG(kgName)
	if err != nil {
		return nil, err
	}
	var result *QueryResult
	err = kg.guard.ReadLocked(func() error {
		node, vars, err := ir.Build(kg.cat, rule)
		if err != nil {
			return err
		}
		strata, trees, err := kg.stratifyRuleSets()
		if err != nil {
			return err
		}
		computed, err := evaluateStrata(kg, e.cfg.Limits, strata, trees)
		if err != nil {
			return err
		}
		resolver := &layeredResolver{base: baseResolver{kg: kg}, computed: computed}
		bag, err := exec.EvalWithTimeout(context.Background(), resolver, e.cfg.Limits, node)
		if err != nil {
			return err
		}
		var rows []value.Tuple
		bag.Each(func(t value.Tuple, mult int64) {
			for i := int64(0); i < mult; i++ {
				rows = append(rows, t)
			}
		})
		result = &QueryResult{Columns: vars, Rows: rows}
		return nil
	})
	return result, err
}

func (e *Engine) declareSchema(kgName string, stmt *parser.SchemaStmt) error {
	kg, err := e.lookupKG(kgName)
	if err != nil {
		return err
	}
	cols := make([]catalog.Column, len(stmt.Columns))
	for i, c := range stmt.Columns {
		kind, ok := catalog.ParseColumnType(c.Type)
		if !ok {
			return ilerrors.ErrInvalidArgument.New("unknown column type " + c.Type)
		}
		cols[i] = catalog.Column{Name: c.Name, Type: kind}
	}
	schema := catalog.Schema{Columns: cols}
	return kg.guard.WriteLocked(func() error {
		if err := kg.cat.DeclareSchema(stmt.Relation, schema); err != nil {
			return err
		}
		if _, err := kg.ensureRelationStore(stmt.Relation, e.cfg.FlushThreshold); err != nil {
			return err
		}
		return saveSchema(kg.relationDir(stmt.Relation), schema)
	})
}

// executeMeta dispatches the `.` meta commands kg, rel, rule, compact and
// status. Any other command, session, load, help and quit included, is
// rejected with InvalidArgument.
func (e *Engine) executeMeta(kgName string, stmt *parser.MetaStmt) (*ExecResult, error) {
	arg := func(i int) string {
		if i < len(stmt.Args) {
			return stmt.Args[i]
		}
		return ""
	}

	switch stmt.Command {
	case "kg":
		switch arg(0) {
		case "list":
			return &ExecResult{Message: strings.Join(e.ListKGs(), ", ")}, nil
		case "current":
			return &ExecResult{Message: e.CurrentKG()}, nil
		case "use":
			return &ExecResult{Message: "using " + arg(1)}, e.UseKG(arg(1))
		case "create":
			return &ExecResult{Message: "created " + arg(1)}, e.CreateKG(arg(1))
		case "drop":
			return &ExecResult{Message: "dropped " + arg(1)}, e.DropKG(arg(1))
		default:
			return nil, ilerrors.ErrInvalidArgument.New(".kg subcommand must be one of list/current/use/create/drop")
		}

	case "rel":
		switch arg(0) {
		case "list":
			names, err := e.ListRelations(kgName)
			if err != nil {
				return nil, err
			}
			return &ExecResult{Message: strings.Join(names, ", ")}, nil
		case "describe":
			desc, err := e.DescribeRelation(kgName, arg(1))
			if err != nil {
				return nil, err
			}
			return &ExecResult{Message: desc}, nil
		default:
			return nil, ilerrors.ErrInvalidArgument.New(".rel subcommand must be one of list/describe")
		}

	case "rule":
		switch arg(0) {
		case "list":
			names, err := e.ListRules(kgName)
			if err != nil {
				return nil, err
			}
			return &ExecResult{Message: strings.Join(names, ", ")}, nil
		case "def":
			defs, err := e.RuleDefinition(kgName, arg(1))
			if err != nil {
				return nil, err
			}
			return &ExecResult{Message: strings.Join(defs, " ")}, nil
		case "drop":
			return &ExecResult{Message: "dropped rule " + arg(1)}, e.DropRule(kgName, arg(1))
		default:
			return nil, ilerrors.ErrInvalidArgument.New(".rule subcommand must be one of list/def/drop")
		}

	case "compact":
		return &ExecResult{Message: "compacted " + kgName}, e.Compact(kgName)

	case "status":
		st := e.Status()
		return &ExecResult{Message: fmt.Sprintf("kgs=%d current=%s", st.KGCount, st.CurrentKG)}, nil

	default:
		return nil, ilerrors.ErrInvalidArgument.New("unsupported meta command ." + stmt.Command)
	}
}
