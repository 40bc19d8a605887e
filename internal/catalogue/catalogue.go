// Package catalogue maintains config.csv, the ordered list mapping each stored file to
// its user-facing long name.
//
// Each line has the form
//
//	AAAAAAAA.EXT,<n>. <Long Name>[\t<midi id>]
//
// where AAAAAAAA is a generated 8-digit hexadecimal file name and n the 1-based position.
// Long names are unique and compared case-insensitively.
package catalogue

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/javanhut/fxstore/internal/fsutil"
)

// FileName is the catalogue file kept in every managed folder.
const FileName = "config.csv"

var (
	ErrDuplicateName = errors.New("long name already in catalogue")
	ErrEmptyName     = errors.New("long name is empty")
	ErrMalformed     = errors.New("malformed catalogue line")
)

// Entry is one catalogue line.
type Entry struct {
	Key      string // 8 hex digits
	Ext      string // extension without dot, may be empty
	LongName string
	MidiID   int
}

// FileName returns the on-disk name of the entry.
func (e Entry) FileName() string {
	if e.Ext == "" {
		return e.Key
	}
	return e.Key + "." + e.Ext
}

// Catalogue is the in-memory content of one config.csv.
type Catalogue struct {
	path    string
	ext     string
	entries []Entry
}

// New creates an empty catalogue stored at path whose generated file names use ext.
func New(path, ext string) *Catalogue {
	return &Catalogue{path: path, ext: strings.ToUpper(ext)}
}

// Load reads the catalogue at path. A missing file is an empty catalogue.
func Load(path, ext string) (*Catalogue, error) {
	c := New(path, ext)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("failed to open catalogue: %w", err)
	}
	defer f.Close()

	c.entries, err = Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes catalogue lines. Entries are returned in the order of their index field.
func Parse(r io.Reader) ([]Entry, error) {
	type indexed struct {
		n int
		e Entry
	}
	var lines []indexed

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		file, rest, ok := strings.Cut(text, ",")
		if !ok {
			return nil, fmt.Errorf("%w %d: missing comma", ErrMalformed, lineNo)
		}
		num, name, ok := strings.Cut(rest, ". ")
		if !ok {
			return nil, fmt.Errorf("%w %d: missing index", ErrMalformed, lineNo)
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			return nil, fmt.Errorf("%w %d: bad index %q", ErrMalformed, lineNo, num)
		}

		var e Entry
		e.Key, e.Ext, _ = strings.Cut(file, ".")
		e.LongName = name
		if name, id, ok := strings.Cut(name, "\t"); ok {
			e.LongName = name
			if id != "" {
				if e.MidiID, err = strconv.Atoi(id); err != nil {
					return nil, fmt.Errorf("%w %d: bad midi id %q", ErrMalformed, lineNo, id)
				}
			}
		}
		lines = append(lines, indexed{n: n, e: e})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(lines, func(i, j int) bool { return lines[i].n < lines[j].n })
	out := make([]Entry, len(lines))
	for i, l := range lines {
		out[i] = l.e
	}
	return out, nil
}

// Path returns where the catalogue is saved.
func (c *Catalogue) Path() string { return c.path }

// Len returns the number of entries.
func (c *Catalogue) Len() int { return len(c.entries) }

// At returns entry i.
func (c *Catalogue) At(i int) Entry { return c.entries[i] }

// Entries returns a copy of every entry in order.
func (c *Catalogue) Entries() []Entry {
	return append([]Entry(nil), c.entries...)
}

// IndexOfName returns the position of longName, compared case-insensitively, or -1.
func (c *Catalogue) IndexOfName(longName string) int {
	for i, e := range c.entries {
		if strings.EqualFold(e.LongName, longName) {
			return i
		}
	}
	return -1
}

// IndexOfFile returns the position of the entry stored as fileName, compared
// case-insensitively, or -1. Callers use At(i).FileName() as the canonical key.
func (c *Catalogue) IndexOfFile(fileName string) int {
	for i, e := range c.entries {
		if strings.EqualFold(e.FileName(), fileName) {
			return i
		}
	}
	return -1
}

// ContainsName reports whether longName is already catalogued.
func (c *Catalogue) ContainsName(longName string) bool {
	return c.IndexOfName(longName) >= 0
}

// Append catalogues longName at the end under a freshly generated file name.
func (c *Catalogue) Append(longName string) (Entry, error) {
	if strings.TrimSpace(longName) == "" {
		return Entry{}, ErrEmptyName
	}
	if strings.ContainsAny(longName, "\n\r\t") {
		return Entry{}, fmt.Errorf("%w: control characters in %q", ErrMalformed, longName)
	}
	if c.ContainsName(longName) {
		return Entry{}, fmt.Errorf("%w: %q", ErrDuplicateName, longName)
	}
	e := Entry{Key: c.generateKey(longName), Ext: c.ext, LongName: longName}
	c.entries = append(c.entries, e)
	return e, nil
}

// generateKey derives the file name from the CRC32 of the long name, feeding 0xFF into
// the checksum until the name is free.
func (c *Catalogue) generateKey(longName string) string {
	h := crc32.NewIEEE()
	h.Write([]byte(longName))
	for {
		key := fmt.Sprintf("%08X", h.Sum32())
		e := Entry{Key: key, Ext: c.ext}
		if c.IndexOfFile(e.FileName()) < 0 {
			return key
		}
		h.Write([]byte{0xFF})
	}
}

// RemoveAt deletes entry i and returns it.
func (c *Catalogue) RemoveAt(i int) Entry {
	e := c.entries[i]
	c.entries = append(c.entries[:i], c.entries[i+1:]...)
	return e
}

// RemoveFile deletes the entry stored as fileName.
func (c *Catalogue) RemoveFile(fileName string) (Entry, bool) {
	i := c.IndexOfFile(fileName)
	if i < 0 {
		return Entry{}, false
	}
	return c.RemoveAt(i), true
}

// Encode renders the catalogue in its file format.
func (c *Catalogue) Encode() []byte {
	var buf bytes.Buffer
	for i, e := range c.entries {
		fmt.Fprintf(&buf, "%s,%d. %s", e.FileName(), i+1, e.LongName)
		if e.MidiID != 0 {
			fmt.Fprintf(&buf, "\t%d", e.MidiID)
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Save atomically writes the catalogue to its path.
func (c *Catalogue) Save() error {
	if err := fsutil.WriteFileAtomic(c.path, c.Encode(), 0644); err != nil {
		return fmt.Errorf("failed to save catalogue: %w", err)
	}
	return nil
}
