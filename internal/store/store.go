// Package store provides a hierarchical container file for scan data: groups,
// chunked compressed datasets and typed attributes in a single SQLite file.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	path       TEXT PRIMARY KEY,
	parent     TEXT NOT NULL,
	kind       INTEGER NOT NULL,
	dtype      TEXT NOT NULL DEFAULT '',
	shape      TEXT NOT NULL DEFAULT '',
	chunk_rows INTEGER NOT NULL DEFAULT 0,
	created    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS nodes_parent ON nodes(parent);
CREATE TABLE IF NOT EXISTS chunks (
	path TEXT NOT NULL,
	idx  INTEGER NOT NULL,
	data BLOB NOT NULL,
	PRIMARY KEY (path, idx)
);
CREATE TABLE IF NOT EXISTS attrs (
	path  TEXT NOT NULL,
	name  TEXT NOT NULL,
	kind  TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (path, name)
);`

// Kind distinguishes groups from datasets.
type Kind int

const (
	KindGroup Kind = iota
	KindDataset
)

func (k Kind) String() string {
	switch k {
	case KindGroup:
		return "group"
	case KindDataset:
		return "dataset"
	default:
		return "unknown"
	}
}

// ErrNotFound is returned when a path does not exist.
var ErrNotFound = errors.New("store: not found")

// GroupTypeError is returned when a dataset path is used where a group is required.
type GroupTypeError struct {
	Path string
}

func (e *GroupTypeError) Error() string {
	return fmt.Sprintf("store: %s is a dataset, not a group", e.Path)
}

// NodeInfo describes a group or dataset.
type NodeInfo struct {
	Path    string
	Kind    Kind
	DType   DType
	Shape   []int
	Created time.Time
}

// Name returns the last path element.
func (n NodeInfo) Name() string {
	return path.Base(n.Path)
}

// File is an open container file.
type File struct {
	db   *sql.DB
	path string
}

// Open opens the container at filename, creating it if needed.
func Open(filename string) (*File, error) {
	db, err := sql.Open("sqlite3", filename+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// One connection serializes writers and keeps transactions simple.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init %s: %w", filename, err)
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO nodes(path, parent, kind, created) VALUES('/', '', ?, ?)`,
		KindGroup, time.Now().Unix()); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init %s: %w", filename, err)
	}
	return &File{db: db, path: filename}, nil
}

// Create creates a new, empty container, replacing any existing file.
func Create(filename string) (*File, error) {
	if err := os.Remove(filename); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return Open(filename)
}

// Close closes the container.
func (f *File) Close() error {
	return f.db.Close()
}

// Filename returns the file the container was opened from.
func (f *File) Filename() string {
	return f.path
}

// Clean normalizes a node path to an absolute slash path.
func Clean(p string) string {
	return path.Clean("/" + p)
}

// Info returns the node at p.
func (f *File) Info(p string) (NodeInfo, error) {
	p = Clean(p)
	var (
		kind    Kind
		dtype   string
		shape   string
		created int64
	)
	err := f.db.QueryRow(`SELECT kind, dtype, shape, created FROM nodes WHERE path = ?`, p).
		Scan(&kind, &dtype, &shape, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return NodeInfo{}, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	if err != nil {
		return NodeInfo{}, err
	}
	dims, err := parseShape(shape)
	if err != nil {
		return NodeInfo{}, err
	}
	return NodeInfo{Path: p, Kind: kind, DType: DType(dtype), Shape: dims, Created: time.Unix(created, 0)}, nil
}

// Exists reports whether p exists.
func (f *File) Exists(p string) bool {
	_, err := f.Info(p)
	return err == nil
}

// Group returns the group at p, or a GroupTypeError if p is a dataset.
func (f *File) Group(p string) (NodeInfo, error) {
	info, err := f.Info(p)
	if err != nil {
		return NodeInfo{}, err
	}
	if info.Kind != KindGroup {
		return NodeInfo{}, &GroupTypeError{Path: info.Path}
	}
	return info, nil
}

// CreateGroup creates the group at p and any missing parents.
func (f *File) CreateGroup(p string) error {
	tx, err := f.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := ensureGroup(tx, Clean(p)); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateIndexedGroup creates the next free group named base_NNN under parent
// and returns its path.
func (f *File) CreateIndexedGroup(parent, base string) (string, error) {
	parent = Clean(parent)
	if err := f.CreateGroup(parent); err != nil {
		return "", err
	}

	children, err := f.Children(parent)
	if err != nil {
		return "", err
	}
	next := 0
	prefix := base + "_"
	for _, c := range children {
		name := c.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(name, prefix)); err == nil && n >= next {
			next = n + 1
		}
	}

	p := path.Join(parent, fmt.Sprintf("%s%03d", prefix, next))
	if err := f.CreateGroup(p); err != nil {
		return "", err
	}
	return p, nil
}

// WriteArray writes a as dataset name under group, replacing any existing
// dataset of that name, and attaches attrs. Missing groups are created.
func (f *File) WriteArray(group, name string, a Array, attrs map[string]any) (string, error) {
	if err := a.validate(); err != nil {
		return "", err
	}
	if name == "" || strings.Contains(name, "/") {
		return "", fmt.Errorf("store: invalid dataset name %q", name)
	}
	group = Clean(group)
	p := path.Join(group, name)

	tx, err := f.db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if err := ensureGroup(tx, group); err != nil {
		return "", err
	}
	if err := deleteTree(tx, p); err != nil {
		return "", err
	}

	rows := chunkRows(a.RowLen() * a.DType.width())
	if _, err := tx.Exec(`INSERT INTO nodes(path, parent, kind, dtype, shape, chunk_rows, created) VALUES(?, ?, ?, ?, ?, ?, ?)`,
		p, group, KindDataset, string(a.DType), formatShape(a.Shape), rows, time.Now().Unix()); err != nil {
		return "", err
	}

	words := arrayWords(a)
	step := rows * a.RowLen() * a.DType.width()
	for idx, off := 0, 0; off < len(words); idx, off = idx+1, off+step {
		end := min(off+step, len(words))
		blob, err := encodeWords(words[off:end])
		if err != nil {
			return "", err
		}
		if _, err := tx.Exec(`INSERT INTO chunks(path, idx, data) VALUES(?, ?, ?)`, p, idx, blob); err != nil {
			return "", err
		}
	}

	if err := setAttrs(tx, p, attrs); err != nil {
		return "", err
	}
	return p, tx.Commit()
}

// ReadArray reads dataset name under group.
func (f *File) ReadArray(group, name string) (Array, error) {
	return f.ReadDataset(path.Join(Clean(group), name))
}

// ReadDataset reads the whole dataset at p.
func (f *File) ReadDataset(p string) (Array, error) {
	info, err := f.Info(p)
	if err != nil {
		return Array{}, err
	}
	if info.Kind != KindDataset {
		return Array{}, fmt.Errorf("store: %s is a group, not a dataset", info.Path)
	}
	return f.ReadRows(p, 0, info.Shape[0])
}

// ReadRows reads n leading-dimension rows starting at start.
func (f *File) ReadRows(p string, start, n int) (Array, error) {
	info, err := f.Info(p)
	if err != nil {
		return Array{}, err
	}
	if info.Kind != KindDataset {
		return Array{}, fmt.Errorf("store: %s is a group, not a dataset", info.Path)
	}
	if start < 0 || n < 0 || start+n > info.Shape[0] {
		return Array{}, fmt.Errorf("store: rows [%d, %d) outside %s with %d rows", start, start+n, info.Path, info.Shape[0])
	}

	var perChunk int
	if err := f.db.QueryRow(`SELECT chunk_rows FROM nodes WHERE path = ?`, info.Path).Scan(&perChunk); err != nil {
		return Array{}, err
	}

	shape := append([]int{n}, info.Shape[1:]...)
	rowWords := 1
	for _, d := range info.Shape[1:] {
		rowWords *= d
	}
	rowWords *= info.DType.width()

	words := make([]float64, 0, n*rowWords)
	if n > 0 && rowWords > 0 {
		first, last := start/perChunk, (start+n-1)/perChunk
		rows, err := f.db.Query(`SELECT idx, data FROM chunks WHERE path = ? AND idx BETWEEN ? AND ? ORDER BY idx`,
			info.Path, first, last)
		if err != nil {
			return Array{}, err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				idx  int
				blob []byte
			)
			if err := rows.Scan(&idx, &blob); err != nil {
				return Array{}, err
			}
			chunk, err := decodeWords(blob)
			if err != nil {
				return Array{}, err
			}
			base := idx * perChunk
			from := max(start, base) - base
			to := min(start+n, base+len(chunk)/rowWords) - base
			if to > from {
				words = append(words, chunk[from*rowWords:to*rowWords]...)
			}
		}
		if err := rows.Err(); err != nil {
			return Array{}, err
		}
	}
	if len(words) != n*rowWords {
		return Array{}, fmt.Errorf("store: %s is truncated: read %d of %d values", info.Path, len(words), n*rowWords)
	}
	return wordsArray(info.DType, shape, words), nil
}

// Attrs returns the attributes of p.
func (f *File) Attrs(p string) (map[string]any, error) {
	p = Clean(p)
	if _, err := f.Info(p); err != nil {
		return nil, err
	}
	rows, err := f.db.Query(`SELECT name, kind, value FROM attrs WHERE path = ?`, p)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]any)
	for rows.Next() {
		var name, kind, value string
		if err := rows.Scan(&name, &kind, &value); err != nil {
			return nil, err
		}
		v, err := decodeAttr(kind, value)
		if err != nil {
			return nil, fmt.Errorf("store: attribute %s of %s: %w", name, p, err)
		}
		out[name] = v
	}
	return out, rows.Err()
}

// SetAttrs sets attributes on p, replacing values of the same name.
func (f *File) SetAttrs(p string, attrs map[string]any) error {
	p = Clean(p)
	if _, err := f.Info(p); err != nil {
		return err
	}
	tx, err := f.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := setAttrs(tx, p, attrs); err != nil {
		return err
	}
	return tx.Commit()
}

// CopyAttrs copies every attribute of src onto dst.
func (f *File) CopyAttrs(dst, src string) error {
	attrs, err := f.Attrs(src)
	if err != nil {
		return err
	}
	return f.SetAttrs(dst, attrs)
}

// Delete removes p and everything below it. The root cannot be deleted.
func (f *File) Delete(p string) error {
	p = Clean(p)
	if p == "/" {
		return errors.New("store: cannot delete root")
	}
	if _, err := f.Info(p); err != nil {
		return err
	}
	tx, err := f.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := deleteTree(tx, p); err != nil {
		return err
	}
	return tx.Commit()
}

// Children lists the direct children of the group p in path order.
func (f *File) Children(p string) ([]NodeInfo, error) {
	p = Clean(p)
	if _, err := f.Group(p); err != nil {
		return nil, err
	}
	rows, err := f.db.Query(`SELECT path FROM nodes WHERE parent = ? ORDER BY path`, p)
	if err != nil {
		return nil, err
	}
	var paths []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			rows.Close()
			return nil, err
		}
		paths = append(paths, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]NodeInfo, 0, len(paths))
	for _, c := range paths {
		info, err := f.Info(c)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

// Walk visits p and its descendants depth first in path order.
func (f *File) Walk(p string, fn func(NodeInfo) error) error {
	info, err := f.Info(p)
	if err != nil {
		return err
	}
	if err := fn(info); err != nil {
		return err
	}
	if info.Kind != KindGroup {
		return nil
	}
	children, err := f.Children(info.Path)
	if err != nil {
		return err
	}
	for _, c := range children {
		if err := f.Walk(c.Path, fn); err != nil {
			return err
		}
	}
	return nil
}

// Find returns the paths of every dataset called name, in path order.
func (f *File) Find(name string) ([]string, error) {
	rows, err := f.db.Query(`SELECT path FROM nodes WHERE kind = ?`, KindDataset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		if path.Base(p) == name {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, rows.Err()
}

// ensureGroup creates p and its parents inside tx, failing with a
// GroupTypeError if any of them is a dataset.
func ensureGroup(tx *sql.Tx, p string) error {
	if p != "/" {
		if err := ensureGroup(tx, path.Dir(p)); err != nil {
			return err
		}
	}
	var kind Kind
	err := tx.QueryRow(`SELECT kind FROM nodes WHERE path = ?`, p).Scan(&kind)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.Exec(`INSERT INTO nodes(path, parent, kind, created) VALUES(?, ?, ?, ?)`,
			p, path.Dir(p), KindGroup, time.Now().Unix())
		return err
	case err != nil:
		return err
	case kind != KindGroup:
		return &GroupTypeError{Path: p}
	}
	return nil
}

func deleteTree(tx *sql.Tx, p string) error {
	prefix := p + "/"
	for _, q := range []string{
		`DELETE FROM chunks WHERE path = ? OR substr(path, 1, ?) = ?`,
		`DELETE FROM attrs WHERE path = ? OR substr(path, 1, ?) = ?`,
		`DELETE FROM nodes WHERE path = ? OR substr(path, 1, ?) = ?`,
	} {
		if _, err := tx.Exec(q, p, len(prefix), prefix); err != nil {
			return err
		}
	}
	return nil
}

func setAttrs(tx *sql.Tx, p string, attrs map[string]any) error {
	for name, v := range attrs {
		kind, value, err := encodeAttr(v)
		if err != nil {
			return fmt.Errorf("%w (attribute %s)", err, name)
		}
		if _, err := tx.Exec(`INSERT OR REPLACE INTO attrs(path, name, kind, value) VALUES(?, ?, ?, ?)`,
			p, name, kind, value); err != nil {
			return err
		}
	}
	return nil
}

func formatShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

func parseShape(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		d, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("store: corrupt shape %q", s)
		}
		out[i] = d
	}
	return out, nil
}
