package core

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"popcatalog/pkg/dense"
	"popcatalog/pkg/domain"
)

// UnboundedDuration is stored for the last residence-duration bucket, which
// counts everyone resident at least that long.
const UnboundedDuration int32 = math.MaxInt16

// Layout describes how a dense result array maps onto a result table. Arrays
// are ordered (age, gender, origin, [extra], year); tables without an origin
// axis drop it.
type Layout struct {
	Table     domain.ResultTable
	CatalogID int32
	StartYear int
	// ExtraOffset is added to extra axis indexes (heirs: bequest minimum age).
	ExtraOffset int32
}

type axes struct {
	origin, extra, year int // -1 when absent
	rank                int
}

func (l Layout) axes() axes {
	ax := axes{origin: -1, extra: -1}
	next := 2
	if l.Table.HasOrigin() {
		ax.origin = next
		next++
	}
	if l.Table.ExtraColumn() != "" {
		ax.extra = next
		next++
	}
	ax.year = next
	ax.rank = next + 1
	return ax
}

func (l Layout) originOffset() int {
	if l.Table == domain.TableResidenceDuration {
		return 5
	}
	return 1
}

func (l Layout) extraValue(x, extent int) int32 {
	if l.Table == domain.TableResidenceDuration {
		if x == extent-1 {
			return UnboundedDuration
		}
		return int32(x)
	}
	return int32(x) + l.ExtraOffset
}

func (l Layout) extraIndex(v int32, extent int) int {
	if l.Table == domain.TableResidenceDuration {
		if v == UnboundedDuration {
			return extent - 1
		}
		return int(v)
	}
	return int(v - l.ExtraOffset)
}

func shapeErr(table domain.ResultTable, format string, args ...any) error {
	return &domain.ValidationError{Entity: "result array", Field: string(table), Reason: fmt.Sprintf(format, args...)}
}

// check rejects shapes whose indexes cannot be stored in the table columns.
func (l Layout) check(shape []int) (axes, error) {
	if !l.Table.Known() {
		return axes{}, &domain.UnsupportedError{Entity: "result table", Field: "name", Value: string(l.Table)}
	}
	ax := l.axes()
	if len(shape) != ax.rank {
		return axes{}, shapeErr(l.Table, "rank %d, want %d", len(shape), ax.rank)
	}
	if shape[0] > math.MaxUint8+1 {
		return axes{}, shapeErr(l.Table, "%d ages exceed the age column", shape[0])
	}
	if shape[1] > math.MaxUint8 {
		return axes{}, shapeErr(l.Table, "%d genders exceed the gender column", shape[1])
	}
	if ax.origin >= 0 && shape[ax.origin]+l.originOffset()-1 > math.MaxUint8 {
		return axes{}, shapeErr(l.Table, "%d origins exceed the origin column", shape[ax.origin])
	}
	if l.StartYear < 1 || l.StartYear+shape[ax.year]-1 > math.MaxInt16 {
		return axes{}, shapeErr(l.Table, "years %d..%d exceed the year column", l.StartYear, l.StartYear+shape[ax.year]-1)
	}
	return ax, nil
}

// Flatten converts arr into one row per non-zero cell. Rows come out
// year-major; workers goroutines each flatten a contiguous block of years.
func Flatten(ctx context.Context, arr *dense.Array, layout Layout, workers int) ([]domain.ResultRow, error) {
	if arr == nil {
		return nil, shapeErr(layout.Table, "array is nil")
	}
	shape := arr.Shape()
	ax, err := layout.check(shape)
	if err != nil {
		return nil, err
	}
	years := shape[ax.year]
	workers = max(1, min(workers, years))
	chunks := make([][]domain.ResultRow, workers)
	g, ctx := errgroup.WithContext(ctx)
	for w := range workers {
		lo, hi := w*years/workers, (w+1)*years/workers
		g.Go(func() error {
			rows, err := flattenYears(ctx, arr, layout, ax, lo, hi)
			chunks[w] = rows
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]domain.ResultRow, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out, nil
}

// flattenYears walks years [lo,hi) in the order year, gender, age, extra,
// origin.
func flattenYears(ctx context.Context, arr *dense.Array, l Layout, ax axes, lo, hi int) ([]domain.ResultRow, error) {
	shape, strides, data := arr.Shape(), arr.Strides(), arr.Data()
	origins, originStride := 1, 0
	if ax.origin >= 0 {
		origins, originStride = shape[ax.origin], strides[ax.origin]
	}
	extras, extraStride := 1, 0
	if ax.extra >= 0 {
		extras, extraStride = shape[ax.extra], strides[ax.extra]
	}
	var rows []domain.ResultRow
	for t := lo; t < hi; t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		year := int16(l.StartYear + t)
		for g := range shape[1] {
			for a := range shape[0] {
				for x := range extras {
					base := t*strides[ax.year] + g*strides[1] + a*strides[0] + x*extraStride
					for o := range origins {
						v := data[base+o*originStride]
						if v == 0 {
							continue
						}
						row := domain.ResultRow{
							CatalogID: l.CatalogID,
							GenderID:  uint8(g + 1),
							Age:       uint8(a),
							Year:      year,
							Value:     v,
						}
						if ax.origin >= 0 {
							row.OriginID = uint8(o + l.originOffset())
						}
						if ax.extra >= 0 {
							row.Extra = l.extraValue(x, extras)
						}
						rows = append(rows, row)
					}
				}
			}
		}
	}
	return rows, nil
}

// Inflate is the inverse of Flatten: it places rows into a zero-filled array
// of shape. Rows outside the shape are rejected.
func Inflate(rows []domain.ResultRow, layout Layout, shape ...int) (*dense.Array, error) {
	ax, err := layout.check(shape)
	if err != nil {
		return nil, err
	}
	arr, err := dense.New(shape...)
	if err != nil {
		return nil, shapeErr(layout.Table, "%v", err)
	}
	idx := make([]int, ax.rank)
	for _, r := range rows {
		idx[0] = int(r.Age)
		idx[1] = int(r.GenderID) - 1
		if ax.origin >= 0 {
			idx[ax.origin] = int(r.OriginID) - layout.originOffset()
		}
		if ax.extra >= 0 {
			idx[ax.extra] = layout.extraIndex(r.Extra, shape[ax.extra])
		}
		idx[ax.year] = int(r.Year) - layout.StartYear
		if err := arr.Set(r.Value, idx...); err != nil {
			return nil, shapeErr(layout.Table, "row %+v: %v", r, err)
		}
	}
	return arr, nil
}
