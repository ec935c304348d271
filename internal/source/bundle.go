package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Input formats accepted by Load.
const (
	FormatAuto = "auto"
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
	FormatZIP  = "zip"
)

// LoadOptions configures Load.
type LoadOptions struct {
	Format      string // auto, xlsx, csv, zip
	Encoding    string // CSV text encoding
	Concurrency int    // parallel CSV readers, default 4
}

// Bundle is a set of raw tables keyed by table name (sheet name or CSV file stem).
// Row 0 of every table is its header.
type Bundle struct {
	Path   string
	Format string
	Names  []string
	Tables map[string][][]string
}

// Table returns the rows of the named table. An exact name wins; otherwise
// the first table in Names order that matches case-insensitively is used.
func (b *Bundle) Table(name string) ([][]string, bool) {
	if rows, ok := b.Tables[name]; ok {
		return rows, true
	}
	for _, n := range b.Names {
		if strings.EqualFold(n, name) {
			rows, ok := b.Tables[n]
			return rows, ok
		}
	}
	return nil, false
}

// DetectFormat resolves FormatAuto from the path: directories hold CSV files,
// otherwise the extension decides.
func DetectFormat(path, format string) (string, error) {
	if format != "" && format != FormatAuto {
		return format, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", eris.Wrapf(err, "source: stat %s", path)
	}
	if info.IsDir() {
		return FormatCSV, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".zip":
		return FormatZIP, nil
	case ".csv":
		return "", eris.Errorf("source: %s is a single CSV file; point at the directory holding every table", path)
	default:
		return "", eris.Errorf("source: cannot detect format of %s", path)
	}
}

// Load reads every table of a CRF export.
func Load(ctx context.Context, path string, opts LoadOptions) (*Bundle, error) {
	format, err := DetectFormat(path, opts.Format)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("path", path), zap.String("format", format))

	var b *Bundle
	switch format {
	case FormatXLSX:
		wb, err := ReadWorkbook(path)
		if err != nil {
			return nil, err
		}
		b = &Bundle{Names: wb.Names, Tables: wb.Sheets}
	case FormatCSV:
		b, err = loadCSVDir(ctx, path, opts)
		if err != nil {
			return nil, err
		}
	case FormatZIP:
		b, err = loadZIP(ctx, path, opts)
		if err != nil {
			return nil, err
		}
	default:
		return nil, eris.Errorf("source: unsupported format %q", format)
	}

	b.Path = path
	b.Format = format
	log.Debug("source: loaded tables", zap.Strings("tables", b.Names))
	return b, nil
}

func loadCSVDir(ctx context.Context, dir string, opts LoadOptions) (*Bundle, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, eris.Wrap(err, "source: glob csv")
	}
	if len(paths) == 0 {
		return nil, eris.Errorf("source: no .csv files in %s", dir)
	}
	return loadCSVFiles(ctx, paths, opts)
}

func loadCSVFiles(ctx context.Context, paths []string, opts LoadOptions) (*Bundle, error) {
	sort.Strings(paths)

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	b := &Bundle{Tables: make(map[string][][]string, len(paths))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, p := range paths {
		name := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		b.Names = append(b.Names, name)
		g.Go(func() error {
			f, err := os.Open(p)
			if err != nil {
				return eris.Wrapf(err, "source: open %s", p)
			}
			defer f.Close() //nolint:errcheck

			rows, err := ReadCSV(gctx, f, CSVOptions{Encoding: opts.Encoding, TrimSpace: true, LazyQuotes: true})
			if err != nil {
				return eris.Wrapf(err, "source: read %s", p)
			}
			mu.Lock()
			b.Tables[name] = rows
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return b, nil
}

func loadZIP(ctx context.Context, path string, opts LoadOptions) (*Bundle, error) {
	tmp, err := os.MkdirTemp("", "pfs-zip-*")
	if err != nil {
		return nil, eris.Wrap(err, "source: create temp dir")
	}
	defer os.RemoveAll(tmp) //nolint:errcheck

	files, err := ExtractZIP(path, tmp)
	if err != nil {
		return nil, err
	}

	var csvs []string
	for _, f := range files {
		switch strings.ToLower(filepath.Ext(f)) {
		case ".xlsx", ".xlsm":
			if len(files) == 1 {
				wb, err := ReadWorkbook(f)
				if err != nil {
					return nil, err
				}
				return &Bundle{Names: wb.Names, Tables: wb.Sheets}, nil
			}
		case ".csv":
			csvs = append(csvs, f)
		}
	}
	if len(csvs) == 0 {
		return nil, eris.Errorf("source: zip %s holds neither a single workbook nor csv tables", path)
	}
	return loadCSVFiles(ctx, csvs, opts)
}

// Digest returns a sha256 over the input. Directories hash every regular file
// in name order together with its relative path.
func Digest(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", eris.Wrapf(err, "source: stat %s", path)
	}

	h := sha256.New()
	if !info.IsDir() {
		if err := hashFile(h, path); err != nil {
			return "", err
		}
		return hex.EncodeToString(h.Sum(nil)), nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return "", eris.Wrapf(err, "source: walk %s", path)
	}
	sort.Strings(files)
	for _, f := range files {
		rel, _ := filepath.Rel(path, f)
		io.WriteString(h, filepath.ToSlash(rel)+"\n") //nolint:errcheck
		if err := hashFile(h, f); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "source: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	if _, err := io.Copy(w, f); err != nil {
		return eris.Wrapf(err, "source: hash %s", path)
	}
	return nil
}
