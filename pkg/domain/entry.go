package domain

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// UnsavedID marks an entry that has no catalog row yet.
const UnsavedID int32 = -1

// Field limits and default descriptions applied to every catalog entry.
const (
	MaxTitleLength   = 100
	MaxTextLength    = 600
	DefaultTextEn    = "Description is pending"
	DefaultTextLocal = "Beskrivelse mangler"
)

const entryEntity = "catalog entry"

var captionPattern = regexp.MustCompile(`^[^\s\\/:*?<>|]+$`)

// clock is the time source for entry timestamps and current-year checks.
var clock = time.Now

// SaveAction is the pending persistence operation of a catalog entry.
type SaveAction uint8

const (
	SaveNone SaveAction = iota
	SaveInsert
	SaveUpdate
)

func (a SaveAction) String() string {
	switch a {
	case SaveNone:
		return "none"
	case SaveInsert:
		return "insert"
	case SaveUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// CatalogEntry is the versioned catalog metadata of a persisted entity.
type CatalogEntry struct {
	id        int32
	class     Class
	title     string
	caption   string
	revision  uint8
	created   time.Time
	modified  time.Time
	readOnly  bool
	published bool
	textEn    string
	textLocal string
	action    SaveAction
}

// EntryRecord is the flat persisted form of a CatalogEntry.
type EntryRecord struct {
	ID        int32
	Class     Class
	Title     string
	Caption   string
	Revision  uint8
	Created   time.Time
	Modified  time.Time
	ReadOnly  bool
	Published bool
	TextEn    string
	TextLocal string
}

// NewCatalogEntry returns an unsaved entry pending insert.
func NewCatalogEntry(class Class, title string) (*CatalogEntry, error) {
	normalized, err := checkTitle(title)
	if err != nil {
		return nil, err
	}
	now := clock().UTC()
	return &CatalogEntry{
		id:        UnsavedID,
		class:     class,
		title:     normalized,
		created:   now,
		modified:  now,
		textEn:    DefaultTextEn,
		textLocal: DefaultTextLocal,
		action:    SaveInsert,
	}, nil
}

// RestoreCatalogEntry rebuilds a saved entry from its persisted record.
func RestoreCatalogEntry(rec EntryRecord) *CatalogEntry {
	return &CatalogEntry{
		id:        rec.ID,
		class:     rec.Class,
		title:     rec.Title,
		caption:   rec.Caption,
		revision:  rec.Revision,
		created:   rec.Created,
		modified:  rec.Modified,
		readOnly:  rec.ReadOnly || rec.Published,
		published: rec.Published,
		textEn:    rec.TextEn,
		textLocal: rec.TextLocal,
		action:    SaveNone,
	}
}

// Record returns the flat form of the entry.
func (e *CatalogEntry) Record() EntryRecord {
	return EntryRecord{
		ID:        e.id,
		Class:     e.class,
		Title:     e.title,
		Caption:   e.caption,
		Revision:  e.revision,
		Created:   e.created,
		Modified:  e.modified,
		ReadOnly:  e.readOnly,
		Published: e.published,
		TextEn:    e.textEn,
		TextLocal: e.textLocal,
	}
}

func (e *CatalogEntry) ID() int32 { return e.id }
func (e *CatalogEntry) Class() Class { return e.class }
func (e *CatalogEntry) Title() string { return e.title }
func (e *CatalogEntry) Caption() string { return e.caption }
func (e *CatalogEntry) Revision() uint8 { return e.revision }
func (e *CatalogEntry) Created() time.Time { return e.created }
func (e *CatalogEntry) Modified() time.Time { return e.modified }
func (e *CatalogEntry) ReadOnly() bool { return e.readOnly }
func (e *CatalogEntry) Published() bool { return e.published }
func (e *CatalogEntry) TextEn() string { return e.textEn }
func (e *CatalogEntry) TextLocal() string { return e.textLocal }
func (e *CatalogEntry) Action() SaveAction { return e.action }
func (e *CatalogEntry) Saved() bool { return e.action == SaveNone }
func (e *CatalogEntry) Persisted() bool { return e.id != UnsavedID }

func (e *CatalogEntry) touch() {
	if e.action != SaveInsert {
		e.action = SaveUpdate
	}
}

func (e *CatalogEntry) guard(field string) error {
	if e.published {
		return &ImmutableError{Field: field}
	}
	return nil
}

func checkTitle(title string) (string, error) {
	normalized := norm.NFC.String(strings.TrimSpace(title))
	if normalized == "" {
		return "", invalid(entryEntity, "title", "is required")
	}
	if n := utf8.RuneCountInString(normalized); n > MaxTitleLength {
		return "", invalid(entryEntity, "title", "%d characters exceeds %d", n, MaxTitleLength)
	}
	return normalized, nil
}

func checkText(field, text string) (string, error) {
	normalized := norm.NFC.String(text)
	if n := utf8.RuneCountInString(normalized); n > MaxTextLength {
		return "", invalid(entryEntity, field, "%d characters exceeds %d", n, MaxTextLength)
	}
	return normalized, nil
}

// SetTitle replaces the title. Titles are required and at most 100
// characters after NFC normalization.
func (e *CatalogEntry) SetTitle(title string) error {
	if err := e.guard("title"); err != nil {
		return err
	}
	normalized, err := checkTitle(title)
	if err != nil {
		return err
	}
	if normalized != e.title {
		e.title = normalized
		e.touch()
	}
	return nil
}

// SetCaption replaces the caption. A caption is empty or a single token free
// of whitespace and path characters.
func (e *CatalogEntry) SetCaption(caption string) error {
	if err := e.guard("caption"); err != nil {
		return err
	}
	if caption != "" && !captionPattern.MatchString(caption) {
		return invalid(entryEntity, "caption", "%q must be a single token without whitespace or path characters", caption)
	}
	if caption != e.caption {
		e.caption = caption
		e.touch()
	}
	return nil
}

func (e *CatalogEntry) SetTextEn(text string) error {
	if err := e.guard("textEn"); err != nil {
		return err
	}
	normalized, err := checkText("textEn", text)
	if err != nil {
		return err
	}
	if normalized != e.textEn {
		e.textEn = normalized
		e.touch()
	}
	return nil
}

func (e *CatalogEntry) SetTextLocal(text string) error {
	if err := e.guard("textLocal"); err != nil {
		return err
	}
	normalized, err := checkText("textLocal", text)
	if err != nil {
		return err
	}
	if normalized != e.textLocal {
		e.textLocal = normalized
		e.touch()
	}
	return nil
}

func (e *CatalogEntry) SetReadOnly(readOnly bool) error {
	if err := e.guard("readOnly"); err != nil {
		return err
	}
	if readOnly != e.readOnly {
		e.readOnly = readOnly
		e.touch()
	}
	return nil
}

// Publish marks the entry published and read-only. Publishing cannot be
// undone; publishing twice is a no-op.
func (e *CatalogEntry) Publish() {
	if e.published {
		return
	}
	e.published = true
	e.readOnly = true
	e.touch()
}

// Acknowledge applies the identity assigned by the store after a successful
// upsert and clears the pending action.
func (e *CatalogEntry) Acknowledge(id Identity) {
	e.id = id.ID
	e.revision = id.Revision
	e.created = id.Created
	e.modified = id.Modified
	e.action = SaveNone
}

// Duplicate returns a new unsaved entry with the same descriptive fields.
// The copy is neither read-only nor published.
func (e *CatalogEntry) Duplicate() *CatalogEntry {
	now := clock().UTC()
	return &CatalogEntry{
		id:        UnsavedID,
		class:     e.class,
		title:     e.title,
		caption:   e.caption,
		created:   now,
		modified:  now,
		textEn:    e.textEn,
		textLocal: e.textLocal,
		action:    SaveInsert,
	}
}

// SnapshotIdentical returns an exact copy, persisted identity included.
func (e *CatalogEntry) SnapshotIdentical() *CatalogEntry {
	cp := *e
	return &cp
}
