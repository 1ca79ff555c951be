package domain

// MaxRangeLength bounds the declared year range of any cataloged entity.
const MaxRangeLength = 500

// Cataloged is the state shared by every persisted entity: its catalog entry,
// its declared year range and a dirty flag for fields outside the entry.
type Cataloged struct {
	entry *CatalogEntry
	years YearRange
	dirty bool
}

func newCataloged(class Class, title string, years YearRange) (Cataloged, error) {
	entry, err := NewCatalogEntry(class, title)
	if err != nil {
		return Cataloged{}, err
	}
	if years.IsZero() {
		return Cataloged{}, invalid(string(class), "years", "range is required")
	}
	years.saved = false
	return Cataloged{entry: entry, years: years, dirty: true}, nil
}

func restoreCataloged(rec EntryRecord, years YearRange) Cataloged {
	years.saved = true
	return Cataloged{entry: RestoreCatalogEntry(rec), years: years}
}

// Entry returns the catalog entry. Setters on the entry mark it for update.
func (c *Cataloged) Entry() *CatalogEntry { return c.entry }

// Years returns a copy of the declared range.
func (c *Cataloged) Years() YearRange { return c.years }

// Saved reports whether the entry, the range and the entity's own fields all
// match their persisted state.
func (c *Cataloged) Saved() bool {
	return c.entry != nil && c.entry.Saved() && c.years.Saved() && !c.dirty
}

// SetYears replaces the declared range.
func (c *Cataloged) SetYears(years YearRange) error {
	if years.IsZero() {
		return invalid(string(c.entry.class), "years", "range is required")
	}
	if years.Equal(c.years) {
		return nil
	}
	years.saved = false
	c.years = years
	return nil
}

func (c *Cataloged) markDirty() { c.dirty = true }

// markSaved records a successful store round trip for everything but the
// catalog entry, which is acknowledged separately.
func (c *Cataloged) markSaved() {
	c.years.saved = true
	c.dirty = false
}

func (c *Cataloged) validate() error {
	if c.entry == nil {
		return invalid("entity", "entry", "catalog entry is required")
	}
	kind := string(c.entry.class)
	if c.years.IsZero() {
		return invalid(kind, "years", "range is required")
	}
	if year := clock().Year(); c.years.start > year {
		return invalid(kind, "years", "start %d is after the current year %d", c.years.start, year)
	}
	if c.years.length > MaxRangeLength {
		return invalid(kind, "years", "length %d exceeds %d", c.years.length, MaxRangeLength)
	}
	return nil
}

// duplicate gives the copy a fresh unsaved identity.
func (c *Cataloged) duplicate() Cataloged {
	years := c.years
	years.saved = false
	return Cataloged{entry: c.entry.Duplicate(), years: years, dirty: true}
}

func (c *Cataloged) snapshot() Cataloged {
	return Cataloged{entry: c.entry.SnapshotIdentical(), years: c.years, dirty: c.dirty}
}
