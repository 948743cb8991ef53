package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"

	"simplemap/internal/tile"
)

// MBTileVersion mbtiles版本号
const MBTileVersion = "1.2"

// MBTilesFetcher reads tiles from an MBTiles file. Rows are stored TMS style.
type MBTilesFetcher struct {
	db   *sql.DB
	stmt *sql.Stmt
}

// OpenMBTiles opens an existing MBTiles file read-only.
func OpenMBTiles(file string) (*MBTilesFetcher, error) {
	if _, err := os.Stat(file); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", "file:"+file+"?mode=ro")
	if err != nil {
		return nil, err
	}
	stmt, err := db.Prepare("select tile_data from tiles where zoom_level = ? and tile_column = ? and tile_row = ?;")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", file, err)
	}
	return &MBTilesFetcher{db: db, stmt: stmt}, nil
}

func (f *MBTilesFetcher) Fetch(ctx context.Context, num tile.Num) ([]byte, error) {
	var data []byte
	err := f.stmt.QueryRowContext(ctx, num.Z, num.X, num.FlipY()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", num, ErrTileNotFound)
	}
	if err != nil {
		return nil, err
	}
	return gunzip(data)
}

// Metadata reads the name/value pairs of the metadata table.
func (f *MBTilesFetcher) Metadata() (map[string]string, error) {
	rows, err := f.db.Query("select name, value from metadata;")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	meta := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		meta[name] = value
	}
	return meta, rows.Err()
}

func (f *MBTilesFetcher) Close() error {
	f.stmt.Close()
	return f.db.Close()
}

// MBTilesWriter stores tiles into a new MBTiles file.
type MBTilesWriter struct {
	file string
	mu   sync.Mutex
	db   *sql.DB
}

// CreateMBTiles replaces file with an empty MBTiles database holding meta.
func CreateMBTiles(file string, meta map[string]string) (*MBTilesWriter, error) {
	os.Remove(file)
	db, err := sql.Open("sqlite3", file)
	if err != nil {
		return nil, err
	}
	if err := setupMBTileTables(db, meta); err != nil {
		db.Close()
		return nil, fmt.Errorf("setup %s: %w", file, err)
	}
	return &MBTilesWriter{file: file, db: db}, nil
}

func setupMBTileTables(db *sql.DB, meta map[string]string) error {
	err := optimizeConnection(db)
	if err != nil {
		return err
	}
	for _, stmt := range []string{
		"create table if not exists tiles (zoom_level integer, tile_column integer, tile_row integer, tile_data blob);",
		"create table if not exists metadata (name text, value text);",
		"create unique index name on metadata (name);",
		"create unique index tile_index on tiles(zoom_level, tile_column, tile_row);",
	} {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	for name, value := range meta {
		_, err := db.Exec("insert into metadata (name, value) values (?, ?)", name, value)
		if err != nil {
			return err
		}
	}
	return nil
}

func optimizeConnection(db *sql.DB) error {
	for _, pragma := range []string{
		"PRAGMA synchronous=0",
		"PRAGMA locking_mode=EXCLUSIVE",
		"PRAGMA journal_mode=DELETE",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return err
		}
	}
	return nil
}

// Put stores data for num, replacing an existing row.
func (w *MBTilesWriter) Put(num tile.Num, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.db.Exec("insert or replace into tiles (zoom_level, tile_column, tile_row, tile_data) values (?, ?, ?, ?);",
		num.Z, num.X, num.FlipY(), data)
	return err
}

// Close analyzes and compacts the file before closing it.
func (w *MBTilesWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, stmt := range []string{"ANALYZE;", "VACUUM;"} {
		if _, err := w.db.Exec(stmt); err != nil {
			log.Warnf("optimize %s error, details: %s", w.file, err)
			break
		}
	}
	return w.db.Close()
}
