package catalogue

import (
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendGeneratesCRCKey(t *testing.T) {
	c := New("", "wav")
	e, err := c.Append("Kick")
	require.NoError(t, err)

	assert.Equal(t, fmt.Sprintf("%08X", crc32.ChecksumIEEE([]byte("Kick"))), e.Key)
	assert.Equal(t, "WAV", e.Ext)
	assert.Equal(t, e.Key+".WAV", e.FileName())
}

func TestAppendRerollsOnCollision(t *testing.T) {
	c := New("", "WAV")
	first := Entry{Key: fmt.Sprintf("%08X", crc32.ChecksumIEEE([]byte("Snare"))), Ext: "WAV", LongName: "Other"}
	c.entries = append(c.entries, first)

	e, err := c.Append("Snare")
	require.NoError(t, err)
	want := crc32.ChecksumIEEE(append([]byte("Snare"), 0xFF))
	assert.Equal(t, fmt.Sprintf("%08X", want), e.Key)
}

func TestNamesAreCaseInsensitive(t *testing.T) {
	c := New("", "WAV")
	_, err := c.Append("Kick")
	require.NoError(t, err)

	assert.True(t, c.ContainsName("KICK"))
	assert.Equal(t, 0, c.IndexOfName("kick"))

	_, err = c.Append("kIcK")
	assert.ErrorIs(t, err, ErrDuplicateName)
	_, err = c.Append("  ")
	assert.ErrorIs(t, err, ErrEmptyName)
	_, err = c.Append("a\tb")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestRemove(t *testing.T) {
	c := New("", "WAV")
	a, _ := c.Append("A")
	b, _ := c.Append("B")

	got, ok := c.RemoveFile(strings.ToLower(a.FileName()))
	require.True(t, ok)
	assert.Equal(t, a, got)
	assert.Equal(t, []Entry{b}, c.Entries())

	_, ok = c.RemoveFile("nope.WAV")
	assert.False(t, ok)
	assert.Equal(t, b, c.RemoveAt(0))
	assert.Equal(t, 0, c.Len())
}

func TestParse(t *testing.T) {
	input := "00000002.WAV,2. Snare\r\n" +
		"00000001.WAV,1. Kick\t36\n" +
		"\n" +
		"0000000A,3. Folder. With dots\n"

	entries, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Key: "00000001", Ext: "WAV", LongName: "Kick", MidiID: 36},
		{Key: "00000002", Ext: "WAV", LongName: "Snare"},
		{Key: "0000000A", Ext: "", LongName: "Folder. With dots"},
	}, entries)
}

func TestParseMalformed(t *testing.T) {
	for _, line := range []string{"no comma", "A.WAV,Kick", "A.WAV,x. Kick", "A.WAV,1. Kick\tz"} {
		_, err := Parse(strings.NewReader(line))
		assert.ErrorIs(t, err, ErrMalformed, line)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	c := New(path, "WAV")
	_, err := c.Append("Kick")
	require.NoError(t, err)
	_, err = c.Append("Hi Hat")
	require.NoError(t, err)
	c.entries[1].MidiID = 42
	require.NoError(t, c.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], ",1. Kick"))
	assert.True(t, strings.HasSuffix(lines[1], ",2. Hi Hat\t42"))

	loaded, err := Load(path, "WAV")
	require.NoError(t, err)
	assert.Equal(t, c.Entries(), loaded.Entries())

	empty, err := Load(filepath.Join(t.TempDir(), FileName), "WAV")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
}
