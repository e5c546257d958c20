package table

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/navillusj/ASX-Share-Monitor/internal/store"
)

// NotAvailable is rendered for any metric that could not be derived.
// A missing value never shows as zero.
const NotAvailable = "N/A"

// Column identifies a sortable table column.
type Column int

const (
	ColumnVisible Column = iota
	ColumnTicker
	ColumnPrice
	ColumnOpen
	ColumnDailyPct
	ColumnDailyAbs
	ColumnHourlyPct
	ColumnHourlyAbs
)

func (c Column) String() string {
	switch c {
	case ColumnVisible:
		return "CHART"
	case ColumnTicker:
		return "SHARE"
	case ColumnPrice:
		return "PRICE"
	case ColumnOpen:
		return "OPEN"
	case ColumnDailyPct:
		return "DAILY %"
	case ColumnDailyAbs:
		return "DAILY $"
	case ColumnHourlyPct:
		return "HOURLY %"
	case ColumnHourlyAbs:
		return "HOURLY $"
	default:
		return fmt.Sprintf("Column(%d)", int(c))
	}
}

// Direction is a sort direction.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// Headers returns the column titles in display order.
func Headers() []string {
	return []string{
		ColumnVisible.String(), ColumnTicker.String(),
		ColumnPrice.String(), ColumnOpen.String(),
		ColumnDailyPct.String(), ColumnDailyAbs.String(),
		ColumnHourlyPct.String(), ColumnHourlyAbs.String(),
	}
}

// Row is one projected table line. Numeric fields are nil when the value
// could not be derived; Cells renders those as NotAvailable.
type Row struct {
	Symbol   string
	Visible  bool
	Stale    bool
	Failures int

	Price     *float64
	Open      *float64
	DailyPct  *float64
	DailyAbs  *float64
	HourlyPct *float64
	HourlyAbs *float64
}

// Cells renders the row's display strings in column order.
func (r Row) Cells() []string {
	mark := "✔"
	if !r.Visible {
		mark = "✘"
	}
	return []string{
		mark,
		r.Symbol,
		formatMoney(r.Price),
		formatMoney(r.Open),
		formatPct(r.DailyPct),
		formatAbs(r.DailyAbs, r.DailyPct),
		formatPct(r.HourlyPct),
		formatAbs(r.HourlyAbs, r.HourlyPct),
	}
}

func (r Row) numeric(col Column) *float64 {
	switch col {
	case ColumnPrice:
		return r.Price
	case ColumnOpen:
		return r.Open
	case ColumnDailyPct:
		return r.DailyPct
	case ColumnDailyAbs:
		return r.DailyAbs
	case ColumnHourlyPct:
		return r.HourlyPct
	case ColumnHourlyAbs:
		return r.HourlyAbs
	default:
		return nil
	}
}

// Project builds rows from insertion-ordered snapshots and stable-sorts
// them by the given column. It always starts from the snapshot order, never
// from a previous projection, so equal keys keep insertion order and
// re-projecting unchanged data is idempotent.
func Project(snaps []store.TickerSnapshot, col Column, dir Direction) []Row {
	rows := make([]Row, len(snaps))
	for i, snap := range snaps {
		rows[i] = buildRow(snap)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return less(rows[i], rows[j], col, dir)
	})
	return rows
}

func buildRow(snap store.TickerSnapshot) Row {
	r := Row{
		Symbol:    snap.Symbol,
		Visible:   snap.Visible,
		Stale:     snap.Stale,
		Failures:  snap.Failures,
		DailyPct:  snap.Metrics.DailyPct,
		DailyAbs:  snap.Metrics.DailyAbs,
		HourlyPct: snap.Metrics.HourlyPct,
		HourlyAbs: snap.Metrics.HourlyAbs,
	}
	if q := snap.Quote; q != nil {
		if q.Price > 0 {
			p := q.Price
			r.Price = &p
		}
		if q.Open > 0 {
			o := q.Open
			r.Open = &o
		}
	}
	return r
}

// less orders two rows for one sort key. Numeric nulls sort last regardless
// of direction: a missing value never outranks a real one.
func less(a, b Row, col Column, dir Direction) bool {
	switch col {
	case ColumnTicker:
		x, y := strings.ToLower(a.Symbol), strings.ToLower(b.Symbol)
		if dir == Descending {
			return y < x
		}
		return x < y
	case ColumnVisible:
		if a.Visible == b.Visible {
			return false
		}
		if dir == Descending {
			return !a.Visible
		}
		return a.Visible
	default:
		x, y := a.numeric(col), b.numeric(col)
		if x == nil || y == nil {
			return x != nil && y == nil
		}
		if dir == Descending {
			return *y < *x
		}
		return *x < *y
	}
}

func formatMoney(v *float64) string {
	if v == nil {
		return NotAvailable
	}
	return "$" + humanize.FormatFloat("#,###.##", *v)
}

// The arrow follows the sign of the percentage for both change cells.
func arrow(pct float64) string {
	if pct >= 0 {
		return " ↑"
	}
	return " ↓"
}

func formatPct(pct *float64) string {
	if pct == nil {
		return NotAvailable
	}
	return fmt.Sprintf("%+.2f%%%s", *pct, arrow(*pct))
}

func formatAbs(abs, pct *float64) string {
	if abs == nil {
		return NotAvailable
	}
	ref := *abs
	if pct != nil {
		ref = *pct
	}
	return fmt.Sprintf("$%+.2f%s", *abs, arrow(ref))
}

// View owns the active sort state and applies treeview header semantics.
type View struct {
	mu     sync.Mutex
	column Column
	dir    Direction
}

// NewView starts sorted by ticker, ascending.
func NewView() *View {
	return &View{column: ColumnTicker, dir: Ascending}
}

// ClickHeader flips direction when the current sort column is clicked again;
// any other column becomes the sort column, ascending.
func (v *View) ClickHeader(col Column) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if col == v.column {
		if v.dir == Ascending {
			v.dir = Descending
		} else {
			v.dir = Ascending
		}
		return
	}
	v.column = col
	v.dir = Ascending
}

// Sort returns the active sort column and direction.
func (v *View) Sort() (Column, Direction) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.column, v.dir
}

// Project projects snapshots under the view's active sort.
func (v *View) Project(snaps []store.TickerSnapshot) []Row {
	col, dir := v.Sort()
	return Project(snaps, col, dir)
}
