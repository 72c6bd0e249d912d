package sink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLite stores each sheet as a table of TEXT columns plus a row_index column.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &SQLite{db: db}, nil
}

// DB exposes the handle for callers that query results back.
func (s *SQLite) DB() *sql.DB { return s.db }

func (s *SQLite) Write(ctx context.Context, sheet Sheet) error {
	name := sheet.Name
	if name == "" {
		name = "results"
	}
	table := quoteIdent(name)

	cols := []string{"row_index"}
	defs := []string{"row_index INTEGER PRIMARY KEY"}
	marks := []string{"?"}
	for _, c := range sheet.Columns {
		cols = append(cols, quoteIdent(c))
		defs = append(defs, quoteIdent(c)+" TEXT")
		marks = append(marks, "?")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return fmt.Errorf("drop table %s: %w", name, err)
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create table %s: %w", name, err)
	}

	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(marks, ", "))
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range sheet.Rows {
		args := make([]any, 0, len(sheet.Columns)+1)
		args = append(args, i)
		for j := range sheet.Columns {
			args = append(args, cell(row, j))
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
