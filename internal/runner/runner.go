package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mickamy/planscope/internal/model"
)

// Options customises how EXPLAIN is executed.
type Options struct {
	Timeout time.Duration
	Explain model.Options
}

// BuildStatement wraps sqlStatement in an EXPLAIN carrying the given options.
// Options left at their server defaults are omitted.
func BuildStatement(sqlStatement string, opts model.Options) (string, error) {
	query := strings.TrimSpace(sqlStatement)
	query = strings.TrimSuffix(query, ";")
	if query == "" {
		return "", errors.New("runner: empty sql statement")
	}
	if opts.ShowWAL && !opts.MeasureExecution {
		return "", errors.New("runner: WAL requires measuring execution (ANALYZE)")
	}

	var parts []string
	if opts.MeasureExecution {
		parts = append(parts, "ANALYZE")
	}
	if opts.Verbose {
		parts = append(parts, "VERBOSE")
	}
	if !opts.ShowCosts {
		parts = append(parts, "COSTS false")
	}
	if opts.ShowBuffers {
		parts = append(parts, "BUFFERS")
	}
	if opts.MeasureExecution && !opts.ShowTiming {
		parts = append(parts, "TIMING false")
	}
	if opts.ShowWAL {
		parts = append(parts, "WAL")
	}

	format := opts.Format
	if format == "" {
		format = model.FormatJSON
	}
	switch format {
	case model.FormatJSON, model.FormatText, model.FormatXML, model.FormatYAML:
	default:
		return "", fmt.Errorf("runner: unknown format %q", format)
	}
	parts = append(parts, "FORMAT "+strings.ToUpper(string(format)))

	return fmt.Sprintf("EXPLAIN (%s) %s", strings.Join(parts, ", "), query), nil
}

// Run executes EXPLAIN for the provided SQL statement and returns the plan
// exactly as the server printed it.
func Run(ctx context.Context, dsn, sqlStatement string, opts Options) ([]byte, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("runner: empty DSN")
	}
	explainSQL, err := BuildStatement(sqlStatement, opts.Explain)
	if err != nil {
		return nil, err
	}

	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("runner: connect: %w", err)
	}
	defer conn.Close(ctx)

	// ANALYZE executes the statement; keep its side effects out of the database.
	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("runner: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, explainSQL)
	if err != nil {
		return nil, fmt.Errorf("runner: query: %w", err)
	}
	lines, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("runner: query: %w", err)
	}
	return []byte(strings.Join(lines, "\n")), nil
}
