package recordstore

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	dErrors "hemotrack/pkg/domain-errors"
)

// PostgresClient implements Client over a pgx pool. Entity names map directly
// to table names; every table carries an "id" primary key assigned by the
// database.
type PostgresClient struct {
	pool *pgxpool.Pool
}

func NewPostgresClient(pool *pgxpool.Pool) *PostgresClient {
	return &PostgresClient{pool: pool}
}

// identRe guards table and column identifiers interpolated into SQL. Filter
// values always go through bind parameters.
var identRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

var sqlOps = map[Op]string{
	OpEq:  "=",
	OpNeq: "<>",
	OpGt:  ">",
	OpGte: ">=",
	OpLt:  "<",
	OpLte: "<=",
}

func (c *PostgresClient) Query(ctx context.Context, entity string, q Query) ([]Record, error) {
	if err := checkIdent(entity); err != nil {
		return nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT * FROM %s", entity)

	args := make([]any, 0, len(q.Filters))
	for i, f := range q.Filters {
		op, ok := sqlOps[f.Op]
		if !ok {
			return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unsupported filter op %q", f.Op))
		}
		if err := checkIdent(f.Field); err != nil {
			return nil, err
		}
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		args = append(args, f.Value)
		fmt.Fprintf(&sb, "%s %s $%d", f.Field, op, len(args))
	}

	if q.Order != nil {
		if err := checkIdent(q.Order.Field); err != nil {
			return nil, err
		}
		dir := "ASC"
		if q.Order.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, " ORDER BY %s %s", q.Order.Field, dir)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}

	rows, err := c.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "query "+entity)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "scan "+entity)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "query "+entity)
	}
	return out, nil
}

func (c *PostgresClient) Insert(ctx context.Context, entity string, fields Record) (Record, error) {
	if err := checkIdent(entity); err != nil {
		return nil, err
	}

	cols := sortedFields(fields)
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		if err := checkIdent(col); err != nil {
			return nil, err
		}
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = fields[col]
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		entity, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "insert "+entity)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "insert "+entity)
		}
		return nil, dErrors.New(dErrors.CodeInternal, "insert returned no row")
	}
	rec, err := scanRecord(rows)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "insert "+entity)
	}
	return rec, nil
}

func (c *PostgresClient) Update(ctx context.Context, entity string, id any, fields Record, idField string) (Record, error) {
	if err := checkIdent(entity); err != nil {
		return nil, err
	}
	if idField == "" {
		idField = "id"
	}
	if err := checkIdent(idField); err != nil {
		return nil, err
	}

	cols := sortedFields(fields)
	if len(cols) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "update requires at least one field")
	}

	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, col := range cols {
		if err := checkIdent(col); err != nil {
			return nil, err
		}
		args = append(args, fields[col])
		sets[i] = fmt.Sprintf("%s = $%d", col, len(args))
	}
	args = append(args, id)

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d RETURNING *",
		entity, strings.Join(sets, ", "), idField, len(args))

	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "update "+entity)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "update "+entity)
		}
		return nil, ErrNotFound
	}
	rec, err := scanRecord(rows)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "update "+entity)
	}
	return rec, nil
}

func scanRecord(rows pgx.Rows) (Record, error) {
	values, err := rows.Values()
	if err != nil {
		return nil, err
	}
	fields := rows.FieldDescriptions()
	rec := make(Record, len(fields))
	for i, fd := range fields {
		rec[fd.Name] = normalizeValue(values[i])
	}
	return rec, nil
}

// normalizeValue maps driver types onto the value set the Record helpers
// understand. UUID columns come back as [16]byte from pgx.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case [16]byte:
		return uuid.UUID(t).String()
	default:
		return v
	}
}

func sortedFields(fields Record) []string {
	cols := make([]string, 0, len(fields))
	for col := range fields {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

func checkIdent(name string) error {
	if !identRe.MatchString(name) {
		return dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("invalid identifier %q", name))
	}
	return nil
}
