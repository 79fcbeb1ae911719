package market

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrSymbolNotFound is returned when a provider has no history for a symbol.
var ErrSymbolNotFound = errors.New("symbol not found")

// Provider supplies ordered daily price histories. Implementations must be
// safe for concurrent use: the backtester and optimizer read from a single
// shared provider across worker goroutines.
type Provider interface {
	GetPrices(ctx context.Context, symbol string, from, to time.Time) (Series, error)
}

// MemoryProvider serves histories from an in-memory map. Useful for tests
// and for callers that already hold bar data.
type MemoryProvider struct {
	mu     sync.RWMutex
	series map[string]Series
}

// NewMemoryProvider creates an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{series: make(map[string]Series)}
}

// SetPrices replaces the stored history for a symbol. Bars are sorted by date.
func (m *MemoryProvider) SetPrices(symbol string, bars Series) {
	sorted := make(Series, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	m.mu.Lock()
	m.series[symbol] = sorted
	m.mu.Unlock()
}

func (m *MemoryProvider) GetPrices(ctx context.Context, symbol string, from, to time.Time) (Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	bars, ok := m.series[symbol]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}
	return bars.Between(from, to), nil
}

// CSVProvider reads one CSV file per symbol from a directory
// (<dir>/<symbol>.csv, header date,open,high,low,close,volume).
// Files are parsed on first access and cached.
type CSVProvider struct {
	dir   string
	mu    sync.Mutex
	cache map[string]Series
}

// NewCSVProvider creates a provider backed by per-symbol CSV files.
func NewCSVProvider(dir string) *CSVProvider {
	return &CSVProvider{dir: dir, cache: make(map[string]Series)}
}

func (c *CSVProvider) GetPrices(ctx context.Context, symbol string, from, to time.Time) (Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	bars, ok := c.cache[symbol]
	c.mu.Unlock()

	if !ok {
		loaded, err := c.load(symbol)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cache[symbol] = loaded
		c.mu.Unlock()
		bars = loaded
	}

	return bars.Between(from, to), nil
}

func (c *CSVProvider) load(symbol string) (Series, error) {
	path := filepath.Join(c.dir, symbol+".csv")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
		}
		return nil, fmt.Errorf("failed to open history for %s: %w", symbol, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse history for %s: %w", symbol, err)
	}

	bars := make(Series, 0, len(rows))
	for i, row := range rows {
		if i == 0 && strings.EqualFold(row[0], "date") {
			continue // header
		}
		if len(row) < 6 {
			return nil, fmt.Errorf("history for %s: row %d has %d columns, want 6", symbol, i+1, len(row))
		}
		bar, err := parseBar(row)
		if err != nil {
			return nil, fmt.Errorf("history for %s: row %d: %w", symbol, i+1, err)
		}
		bars = append(bars, bar)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	log.Debug().Str("symbol", symbol).Int("bars", len(bars)).Str("path", path).Msg("Loaded price history")
	return bars, nil
}

func parseBar(row []string) (PriceBar, error) {
	date, err := time.Parse("2006-01-02", strings.TrimSpace(row[0]))
	if err != nil {
		return PriceBar{}, fmt.Errorf("bad date %q: %w", row[0], err)
	}

	vals := make([]float64, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i+1]), 64)
		if err != nil {
			return PriceBar{}, fmt.Errorf("bad value %q: %w", row[i+1], err)
		}
		vals[i] = v
	}

	return PriceBar{
		Date:   date,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}
