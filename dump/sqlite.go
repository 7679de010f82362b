package dump

import (
	"database/sql"
	"fmt"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE meta (key TEXT PRIMARY KEY, value TEXT);
CREATE TABLE entities (
	dim INTEGER, idx INTEGER, gid INTEGER, status TEXT, owner INTEGER,
	layer INTEGER, source INTEGER, x REAL, y REAL, z REAL,
	PRIMARY KEY (dim, idx)
);
CREATE TABLE sharing (dim INTEGER, idx INTEGER, rank INTEGER);
CREATE TABLE tag_values (
	tag TEXT, dim INTEGER, idx INTEGER, comp INTEGER, fval REAL, ival INTEGER
);
`

// WriteSQLite writes the snapshot into a fresh SQLite database at
// path, one snapshot per file.
func WriteSQLite(path string, snap *Snapshot) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("dump: open %s: %w", path, err)
	}
	defer db.Close()
	if _, err := db.Exec(sqliteSchema); err != nil {
		return fmt.Errorf("dump: create schema in %s: %w", path, err)
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("dump: begin: %w", err)
	}
	defer tx.Rollback()

	meta := [][2]string{
		{"run_id", snap.RunID},
		{"rank", strconv.Itoa(snap.Rank)},
		{"size", strconv.Itoa(snap.Size)},
		{"dim", strconv.Itoa(snap.Dim)},
	}
	for _, kv := range meta {
		if _, err := tx.Exec(`INSERT INTO meta (key, value) VALUES (?, ?)`, kv[0], kv[1]); err != nil {
			return fmt.Errorf("dump: meta %s: %w", kv[0], err)
		}
	}

	entStmt, err := tx.Prepare(`INSERT INTO entities
		(dim, idx, gid, status, owner, layer, source, x, y, z)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("dump: prepare entities: %w", err)
	}
	defer entStmt.Close()
	shareStmt, err := tx.Prepare(`INSERT INTO sharing (dim, idx, rank) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("dump: prepare sharing: %w", err)
	}
	defer shareStmt.Close()
	for _, e := range snap.Entities {
		if _, err := entStmt.Exec(e.Dim, e.Index, e.GID, e.Status, e.Owner,
			e.Layer, e.Source, e.Centroid[0], e.Centroid[1], e.Centroid[2]); err != nil {
			return fmt.Errorf("dump: entity %d/%d: %w", e.Dim, e.Index, err)
		}
		for _, r := range e.Ranks {
			if _, err := shareStmt.Exec(e.Dim, e.Index, r); err != nil {
				return fmt.Errorf("dump: sharing %d/%d: %w", e.Dim, e.Index, err)
			}
		}
	}

	tagStmt, err := tx.Prepare(`INSERT INTO tag_values
		(tag, dim, idx, comp, fval, ival) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("dump: prepare tag_values: %w", err)
	}
	defer tagStmt.Close()
	for _, td := range snap.Tags {
		for _, row := range td.Entries {
			for j := 0; j < td.Width; j++ {
				var fval, ival any
				if row.Floats != nil {
					fval = row.Floats[j]
				}
				if row.Ints != nil {
					ival = row.Ints[j]
				}
				if _, err := tagStmt.Exec(td.Name, row.Dim, row.Index, j, fval, ival); err != nil {
					return fmt.Errorf("dump: tag %s %d/%d: %w", td.Name, row.Dim, row.Index, err)
				}
			}
		}
	}
	return tx.Commit()
}
