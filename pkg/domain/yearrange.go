package domain

import (
	"fmt"
	"iter"
)

const yearRangeEntity = "year range"

// YearRange is an interval of consecutive calendar years held as
// {start, length}. The zero value is undefined; build ranges with
// NewYearRange, YearRangeBetween or JoinYearRanges.
//
// Mutators keep the range normalized and clear the saved flag; a failed
// mutation leaves the range untouched.
type YearRange struct {
	start  int
	length int
	saved  bool
}

// NewYearRange returns the range starting at start and spanning length years.
func NewYearRange(start, length int) (YearRange, error) {
	if err := checkBounds(start, length); err != nil {
		return YearRange{}, err
	}
	return YearRange{start: start, length: length}, nil
}

// YearRangeBetween returns the range from first to last inclusive.
func YearRangeBetween(first, last int) (YearRange, error) {
	if last < first {
		return YearRange{}, invalid(yearRangeEntity, "end", "%d precedes start %d", last, first)
	}
	return NewYearRange(first, last-first+1)
}

// JoinYearRanges returns the range covering first followed by second. The
// second range must continue the first.
func JoinYearRanges(first, second YearRange) (YearRange, error) {
	if first.IsZero() || second.IsZero() {
		return YearRange{}, invalid(yearRangeEntity, "join", "both ranges must be defined")
	}
	if !first.Continues(second) {
		return YearRange{}, invalid(yearRangeEntity, "join", "%s is not continued by %s", first, second)
	}
	return YearRange{start: first.start, length: first.length + second.length}, nil
}

func checkBounds(start, length int) error {
	if start < 1 {
		return invalid(yearRangeEntity, "start", "%d must be positive", start)
	}
	if length < 1 {
		return invalid(yearRangeEntity, "length", "%d must be positive", length)
	}
	return nil
}

func (r YearRange) Start() int { return r.start }
func (r YearRange) End() int { return r.start + r.length - 1 }
func (r YearRange) Length() int { return r.length }

// Saved reports whether the range matches its persisted state.
func (r YearRange) Saved() bool { return r.saved }

// IsZero reports whether the range was never defined.
func (r YearRange) IsZero() bool { return r.length == 0 }

// MarkSaved records that the current bounds were persisted.
func (r *YearRange) MarkSaved() { r.saved = true }

func (r YearRange) String() string {
	if r.IsZero() {
		return "[undefined]"
	}
	return fmt.Sprintf("[%d..%d]", r.start, r.End())
}

// Equal compares bounds only; the saved flag is not part of identity.
func (r YearRange) Equal(other YearRange) bool {
	return r.start == other.start && r.length == other.length
}

func (r *YearRange) set(start, length int) error {
	if err := checkBounds(start, length); err != nil {
		return err
	}
	if r.start == start && r.length == length {
		return nil
	}
	r.start, r.length, r.saved = start, length, false
	return nil
}

// Define respecifies the range by its first and last year.
func (r *YearRange) Define(first, last int) error {
	if last < first {
		return invalid(yearRangeEntity, "end", "%d precedes start %d", last, first)
	}
	return r.set(first, last-first+1)
}

// DefineLength changes the length, keeping either the start or the end year.
func (r *YearRange) DefineLength(length int, keepStart bool) error {
	if length < 1 {
		return invalid(yearRangeEntity, "length", "%d must be positive", length)
	}
	if keepStart {
		return r.set(r.start, length)
	}
	return r.set(r.End()-length+1, length)
}

// DefineAnchored respecifies the range from one anchor year and a length.
// When isStart is false the anchor is the last year.
func (r *YearRange) DefineAnchored(year, length int, isStart bool) error {
	if year < 1 {
		return invalid(yearRangeEntity, "year", "%d must be positive", year)
	}
	if length < 1 {
		return invalid(yearRangeEntity, "length", "%d must be positive", length)
	}
	if isStart {
		return r.set(year, length)
	}
	return r.set(year-length+1, length)
}

// SetStart moves the first year and keeps the last.
func (r *YearRange) SetStart(year int) error {
	return r.Define(year, r.End())
}

// SetEnd moves the last year and keeps the first.
func (r *YearRange) SetEnd(year int) error {
	return r.Define(r.start, year)
}

// SetLength changes the length and keeps the first year.
func (r *YearRange) SetLength(length int) error {
	return r.DefineLength(length, true)
}

// GetYear maps a zero-based ordinal to its calendar year.
func (r YearRange) GetYear(ordinal int) (int, error) {
	if ordinal < 0 || ordinal >= r.length {
		return 0, &RangeError{Value: ordinal, Kind: "ordinal", Range: r}
	}
	return r.start + ordinal, nil
}

// GetOrdinal maps a calendar year to its zero-based position.
func (r YearRange) GetOrdinal(year int) (int, error) {
	if !r.IncludesYear(year) {
		return 0, &RangeError{Value: year, Kind: "year", Range: r}
	}
	return year - r.start, nil
}

// Years yields every year of the range in ascending order. The sequence can
// be ranged over any number of times.
func (r YearRange) Years() iter.Seq[int] {
	return func(yield func(int) bool) {
		for y := r.start; y <= r.End(); y++ {
			if !yield(y) {
				return
			}
		}
	}
}

// Ordinals yields 0..length-1.
func (r YearRange) Ordinals() iter.Seq[int] {
	return func(yield func(int) bool) {
		for i := 0; i < r.length; i++ {
			if !yield(i) {
				return
			}
		}
	}
}

// Includes reports whether every year of other lies within r.
func (r YearRange) Includes(other YearRange) bool {
	return r.start <= other.start && other.End() <= r.End()
}

// IncludesYear reports whether year lies within r.
func (r YearRange) IncludesYear(year int) bool {
	return r.start <= year && year < r.start+r.length
}

// Follows reports whether r ends strictly before other starts.
func (r YearRange) Follows(other YearRange) bool {
	return r.End() < other.start
}

// Continues reports whether other starts the year after r ends.
func (r YearRange) Continues(other YearRange) bool {
	return r.End() == other.start-1
}

// Overlaps reports end >= other.start || start >= other.end. It also holds
// for ranges that merely touch or lie apart; Intersects is the set test.
func (r YearRange) Overlaps(other YearRange) bool {
	return r.End() >= other.start || r.start >= other.End()
}

// Intersects reports whether r and other share at least one year.
func (r YearRange) Intersects(other YearRange) bool {
	return r.start <= other.End() && other.start <= r.End()
}

// YearSpan is the serialized form of a YearRange.
type YearSpan struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}

// Span returns the serialized form of r.
func (r YearRange) Span() YearSpan { return YearSpan{Start: r.start, Length: r.length} }

// Range converts a decoded span back into a YearRange. A zero span yields the
// zero range.
func (s YearSpan) Range() (YearRange, error) {
	if s == (YearSpan{}) {
		return YearRange{}, nil
	}
	return NewYearRange(s.Start, s.Length)
}
