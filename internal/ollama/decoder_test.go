// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func responses(frags []Fragment) string {
	var sb strings.Builder
	for _, f := range frags {
		sb.WriteString(f.Response)
	}
	return sb.String()
}

// =============================================================================
// FEED / FLUSH
// =============================================================================

func TestDecoder_TwoLinesOneChunk(t *testing.T) {
	d := NewDecoder(nil)

	frags := d.Feed([]byte("{\"response\":\"Hel\"}\n{\"response\":\"lo\"}\n"))
	require.Len(t, frags, 2)
	assert.Equal(t, "Hello", responses(frags))
	assert.Empty(t, d.Flush())
}

func TestDecoder_LineSplitAcrossChunks(t *testing.T) {
	d := NewDecoder(nil)

	assert.Empty(t, d.Feed([]byte(`{"respon`)))
	assert.Equal(t, `{"respon`, d.Buffered())

	frags := d.Feed([]byte("se\":\"Hi\"}\n"))
	require.Len(t, frags, 1)
	assert.Equal(t, "Hi", frags[0].Response)
	assert.Empty(t, d.Buffered())
}

func TestDecoder_TrailingSegmentNeverParsed(t *testing.T) {
	d := NewDecoder(nil)

	// Complete JSON but no newline
	assert.Empty(t, d.Feed([]byte(`{"response":"tail"}`)))
	assert.Equal(t, `{"response":"tail"}`, d.Buffered())

	assert.Empty(t, d.Flush())
	assert.Empty(t, d.Buffered())
	assert.Equal(t, 1, d.Malformed())
}

func TestDecoder_BlankTailNotMalformed(t *testing.T) {
	d := NewDecoder(nil)
	frags := d.Feed([]byte("{\"response\":\"a\"}\n  "))
	require.Len(t, frags, 1)

	assert.Empty(t, d.Flush())
	assert.Zero(t, d.Malformed())
}

func TestDecoder_MalformedLinesSkipped(t *testing.T) {
	d := NewDecoder(nil)

	input := "{\"response\":\"a\"}\nnot json\n{\"response\":\"b\"\n\n{\"response\":\"c\"}\n"
	frags := d.Feed([]byte(input))
	require.Len(t, frags, 2)
	assert.Equal(t, "ac", responses(frags))
	assert.Equal(t, 2, d.Malformed())
}

func TestDecoder_CRLF(t *testing.T) {
	d := NewDecoder(nil)
	frags := d.Feed([]byte("{\"response\":\"x\"}\r\n{\"response\":\"y\"}\r\n"))
	assert.Equal(t, "xy", responses(frags))
}

func TestDecoder_MultiByteSplit(t *testing.T) {
	// "é" is 0xC3 0xA9; "👋" is 4 bytes
	line := []byte("{\"response\":\"café \U0001F44B\"}\n")

	for split := 1; split < len(line); split++ {
		d := NewDecoder(nil)
		var frags []Fragment
		frags = append(frags, d.Feed(line[:split])...)
		frags = append(frags, d.Feed(line[split:])...)
		frags = append(frags, d.Flush()...)

		require.Len(t, frags, 1, "split at %d", split)
		assert.Equal(t, "café 👋", frags[0].Response, "split at %d", split)
	}
}

func TestDecoder_ByteAtATime(t *testing.T) {
	input := []byte("{\"response\":\"日本\"}\n{\"response\":\"語\"}\n")
	d := NewDecoder(nil)

	var frags []Fragment
	for i := range input {
		frags = append(frags, d.Feed(input[i:i+1])...)
	}
	frags = append(frags, d.Flush()...)
	assert.Equal(t, "日本語", responses(frags))
}

func TestDecoder_InvalidUTF8BecomesReplacement(t *testing.T) {
	d := NewDecoder(nil)
	frags := d.Feed([]byte("{\"response\":\"a\xffb\"}\n"))
	require.Len(t, frags, 1)
	assert.Equal(t, "a�b", frags[0].Response)
}

func TestDecoder_TruncatedSequenceAtEOF(t *testing.T) {
	d := NewDecoder(nil)
	// Stream ends inside a 3-byte sequence that was inside a string
	frags := d.Feed([]byte("{\"response\":\"ok\"}\n\xe6\x97"))
	require.Len(t, frags, 1)

	frags = d.Flush()
	assert.Empty(t, frags)
	assert.Equal(t, 1, d.Malformed())
}

func TestDecoder_LeadingBOMStripped(t *testing.T) {
	d := NewDecoder(nil)
	frags := d.Feed([]byte("\xef\xbb\xbf{\"response\":\"x\"}\n"))
	require.Len(t, frags, 1)
	assert.Equal(t, "x", frags[0].Response)
}

func TestDecoder_FinalFragmentStats(t *testing.T) {
	d := NewDecoder(nil)
	frags := d.Feed([]byte(`{"response":"","done":true,"done_reason":"stop","eval_count":10,"eval_duration":2000000000,"total_duration":3000000000}` + "\n"))
	require.Len(t, frags, 1)

	f := frags[0]
	assert.True(t, f.Done)
	assert.True(t, f.HasStats())
	assert.Equal(t, "stop", f.DoneReason)
	assert.InDelta(t, 5.0, f.TokensPerSecond(), 0.001)
	assert.Equal(t, "3s", f.Duration().String())
}

// =============================================================================
// NEXT / ALL
// =============================================================================

func TestDecoder_NextUntilEOF(t *testing.T) {
	r := iotest.OneByteReader(strings.NewReader("{\"response\":\"Hel\"}\n{\"response\":\"lo\"}\n"))
	d := NewDecoder(r)

	var got []Fragment
	for {
		f, err := d.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, f)
	}
	assert.Equal(t, "Hello", responses(got))
	assert.NoError(t, d.Err())

	_, err := d.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoder_NextDropsUnterminatedTail(t *testing.T) {
	d := NewDecoder(strings.NewReader("{\"response\":\"Hel\"}\n{\"response\":\"lo\"}"))

	var got []Fragment
	for f := range d.All() {
		got = append(got, f)
	}
	assert.Equal(t, "Hel", responses(got))
	assert.NoError(t, d.Err())
	assert.Equal(t, 1, d.Malformed())
}

func TestDecoder_All(t *testing.T) {
	d := NewDecoder(strings.NewReader("{\"response\":\"a\"}\ngarbage\n{\"response\":\"b\"}\n"))

	var sb strings.Builder
	for f := range d.All() {
		sb.WriteString(f.Response)
	}
	assert.Equal(t, "ab", sb.String())
	assert.NoError(t, d.Err())
}

func TestDecoder_ReadErrorAfterFragments(t *testing.T) {
	boom := errors.New("connection reset")
	r := io.MultiReader(
		strings.NewReader("{\"response\":\"a\"}\n{\"resp"),
		iotest.ErrReader(boom),
	)
	d := NewDecoder(r)

	f, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", f.Response)

	_, err = d.Next()
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, d.Err(), boom)
}

func TestDecoder_AllStopsEarly(t *testing.T) {
	d := NewDecoder(strings.NewReader("{\"response\":\"a\"}\n{\"response\":\"b\"}\n"))
	for f := range d.All() {
		assert.Equal(t, "a", f.Response)
		break
	}
	f, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, "b", f.Response)
}
