/*
Copyright (c) 2017 Jerry Jacobs <jerry.jacobs@xor-gate.org>
Copyright (c) 2013 Blake Smith <blakesmith0@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package ar

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeEmptyArchive(t *testing.T) {
	a := NewArchive(Modifiers{})
	a.Dialect = GNU

	data, err := Serialize(a)
	require.NoError(t, err)
	assert.Equal(t, []byte(gnuMagic), data)
}

func TestSerializeResolvesAmbiguousDialect(t *testing.T) {
	a := NewArchive(Modifiers{})
	_, err := Serialize(a)
	require.NoError(t, err)
	assert.NotEqual(t, Ambiguous, a.Dialect)
}

func TestSerializeSimpleGNUMemberRoundTrips(t *testing.T) {
	a := NewArchive(Modifiers{UseRealTimestampsAndIDs: true})
	a.Dialect = GNU
	a.Members = []*Member{
		{
			Name:    []byte("a.o"),
			Data:    []byte("hello world\n"),
			ModTime: time.Unix(1361157466, 0),
			Uid:     501,
			Gid:     20,
			Mode:    0644,
		},
	}

	data, err := Serialize(a)
	require.NoError(t, err)

	back, err := Read(data, "", Modifiers{})
	require.NoError(t, err)
	require.Len(t, back.Members, 1)
	assert.Equal(t, "a.o", back.Members[0].name())
	assert.Equal(t, []byte("hello world\n"), back.Members[0].Data)
	assert.Equal(t, 501, back.Members[0].Uid)
	assert.Equal(t, 20, back.Members[0].Gid)
}

func TestSerializeLongGNUName(t *testing.T) {
	name := "this_is_a_very_long_name.o"
	a := NewArchive(Modifiers{})
	a.Dialect = GNU
	a.Members = []*Member{{Name: []byte(name), Data: []byte("payload")}}

	data, err := Serialize(a)
	require.NoError(t, err)
	assert.Contains(t, string(data), name+"/\n")

	back, err := Read(data, "", Modifiers{})
	require.NoError(t, err)
	require.Len(t, back.Members, 1)
	assert.Equal(t, name, back.Members[0].name())
	assert.Equal(t, []byte("payload"), back.Members[0].Data)
}

func TestSerializeGNUSymbolIndexRoundTrips(t *testing.T) {
	a := NewArchive(Modifiers{BuildSymbolTable: true})
	a.Dialect = GNU
	a.Members = []*Member{{Name: []byte("a.o"), Data: []byte("object bytes")}}
	a.Symbols = []SymbolRef{{Name: []byte("foo"), MemberIndex: 0}}

	data, err := Serialize(a)
	require.NoError(t, err)
	assert.Equal(t, "/", string(bytes.TrimRight(data[8:8+16], " ")))

	back, err := Read(data, "", Modifiers{})
	require.NoError(t, err)
	require.Len(t, back.Symbols, 1)
	assert.Equal(t, "foo", string(back.Symbols[0].Name))
	assert.False(t, back.Symbols[0].Unresolved())
	assert.Equal(t, "a.o", back.Members[back.Symbols[0].MemberIndex].name())
}

func TestSerializeGNUOmitsSymbolIndexWhenNotRequested(t *testing.T) {
	a := NewArchive(Modifiers{})
	a.Dialect = GNU
	a.Members = []*Member{{Name: []byte("a.o"), Data: []byte("object bytes")}}
	a.Symbols = []SymbolRef{{Name: []byte("foo"), MemberIndex: 0}}

	data, err := Serialize(a)
	require.NoError(t, err)
	assert.NotEqual(t, "/", string(bytes.TrimRight(data[8:8+16], " ")))
}

func TestSerializeSortSymbolTable(t *testing.T) {
	a := NewArchive(Modifiers{BuildSymbolTable: true, SortSymbolTable: true})
	a.Dialect = GNU
	a.Members = []*Member{{Name: []byte("a.o"), Data: []byte("x")}}
	a.Symbols = []SymbolRef{
		{Name: []byte("zebra"), MemberIndex: 0},
		{Name: []byte("apple"), MemberIndex: 0},
	}

	data, err := Serialize(a)
	require.NoError(t, err)

	back, err := Read(data, "", Modifiers{})
	require.NoError(t, err)
	require.Len(t, back.Symbols, 2)
	assert.Equal(t, "apple", string(back.Symbols[0].Name))
	assert.Equal(t, "zebra", string(back.Symbols[1].Name))
}

func TestSerializeBSDRoundTrips(t *testing.T) {
	a := NewArchive(Modifiers{BuildSymbolTable: true})
	a.Dialect = BSD
	a.Members = []*Member{
		{Name: []byte("a.o"), Data: []byte("short")},
		{Name: []byte("bbbbbbbbbbbb.o"), Data: []byte("longer payload data")},
	}
	a.Symbols = []SymbolRef{{Name: []byte("bar"), MemberIndex: 1}}

	data, err := Serialize(a)
	require.NoError(t, err)
	assert.Contains(t, string(data), "#1/16")

	back, err := Read(data, "", Modifiers{})
	require.NoError(t, err)
	require.Len(t, back.Members, 2)
	assert.Equal(t, "a.o", back.Members[0].name())
	assert.Equal(t, "bbbbbbbbbbbb.o", back.Members[1].name())
	assert.Equal(t, []byte("short"), back.Members[0].Data)
	assert.Equal(t, []byte("longer payload data"), back.Members[1].Data)

	require.Len(t, back.Symbols, 1)
	assert.Equal(t, "bar", string(back.Symbols[0].Name))
	assert.False(t, back.Symbols[0].Unresolved())
	assert.Equal(t, "bbbbbbbbbbbb.o", back.Members[back.Symbols[0].MemberIndex].name())
}

func TestSerializeDarwinWritesSymdefEvenWithNoSymbols(t *testing.T) {
	a := NewArchive(Modifiers{BuildSymbolTable: true})
	a.Dialect = Darwin
	a.Members = []*Member{{Name: []byte("a.o"), Data: []byte("x")}}

	data, err := Serialize(a)
	require.NoError(t, err)
	assert.Contains(t, string(data), bsdSymdefName)

	back, err := Read(data, "", Modifiers{})
	require.NoError(t, err)
	require.Len(t, back.Members, 1)
	assert.Equal(t, "a.o", back.Members[0].name())
	assert.Empty(t, back.Symbols)
}

func TestSerializeBSDOmitsEmptySymdef(t *testing.T) {
	a := NewArchive(Modifiers{BuildSymbolTable: true})
	a.Dialect = BSD
	a.Members = []*Member{{Name: []byte("a.o"), Data: []byte("x")}}

	data, err := Serialize(a)
	require.NoError(t, err)
	assert.NotContains(t, string(data), bsdSymdefName)
}

func TestSerializeDarwin64RoundTrips(t *testing.T) {
	a := NewArchive(Modifiers{BuildSymbolTable: true})
	a.Dialect = Darwin64
	a.Members = []*Member{{Name: []byte("a.o"), Data: []byte("object bytes")}}
	a.Symbols = []SymbolRef{{Name: []byte("foo"), MemberIndex: 0}}

	data, err := Serialize(a)
	require.NoError(t, err)
	assert.Contains(t, string(data), bsdSymdef64Name)

	back, err := Read(data, "", Modifiers{})
	require.NoError(t, err)
	assert.Equal(t, Darwin64, back.Dialect)
	require.Len(t, back.Symbols, 1)
	assert.Equal(t, "foo", string(back.Symbols[0].Name))
	assert.Equal(t, "a.o", back.Members[back.Symbols[0].MemberIndex].name())
}

func TestSerializeDeterministicModeIsByteIdentical(t *testing.T) {
	build := func(mtime time.Time) *Archive {
		a := NewArchive(Modifiers{})
		a.Dialect = GNU
		a.Members = []*Member{{
			Name: []byte("a.o"), Data: []byte("hello"),
			ModTime: mtime, Uid: 501, Gid: 20, Mode: 0755,
		}}
		return a
	}

	data1, err := Serialize(build(time.Unix(1000, 0)))
	require.NoError(t, err)
	data2, err := Serialize(build(time.Unix(2000, 0)))
	require.NoError(t, err)
	assert.Equal(t, data1, data2)

	back, err := Read(data1, "", Modifiers{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), back.Members[0].ModTime.Unix())
	assert.Equal(t, 0, back.Members[0].Uid)
	assert.Equal(t, 0, back.Members[0].Gid)
	assert.Equal(t, int64(0644), back.Members[0].Mode)
}

func TestSerializeRealTimestampsProduceDifferentBytes(t *testing.T) {
	build := func(mtime time.Time) *Archive {
		a := NewArchive(Modifiers{UseRealTimestampsAndIDs: true})
		a.Dialect = GNU
		a.Members = []*Member{{Name: []byte("a.o"), Data: []byte("hello"), ModTime: mtime}}
		return a
	}

	data1, err := Serialize(build(time.Unix(1000, 0)))
	require.NoError(t, err)
	data2, err := Serialize(build(time.Unix(2000, 0)))
	require.NoError(t, err)
	assert.NotEqual(t, data1, data2)
}

func TestSaveTruncatesExistingFileContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.a")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{'x'}, 1000), 0644))

	a := NewArchive(Modifiers{})
	a.Dialect = GNU

	require.NoError(t, Save(a, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte(gnuMagic), data)
}

func TestSaveThenReadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.a")

	a := NewArchive(Modifiers{})
	a.Dialect = GNU
	a.Members = []*Member{{Name: []byte("a.o"), Data: []byte("payload")}}

	require.NoError(t, Save(a, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	back, err := Read(data, dir, Modifiers{})
	require.NoError(t, err)
	require.Len(t, back.Members, 1)
	assert.Equal(t, []byte("payload"), back.Members[0].Data)
}

func TestSerializeGNUThinWritesNoPayloadBytes(t *testing.T) {
	a := NewArchive(Modifiers{})
	a.Dialect = GNUThin
	a.Members = []*Member{{Name: []byte("a.o"), declaredSize: 4096}}

	data, err := Serialize(a)
	require.NoError(t, err)

	back, err := Read(data, "", Modifiers{})
	require.NoError(t, err)
	require.Len(t, back.Members, 1)
	assert.Nil(t, back.Members[0].Data)
	assert.Equal(t, int64(4096), back.Members[0].size())
}
