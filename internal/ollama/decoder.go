// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"iter"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// =============================================================================
// STREAM DECODER
// =============================================================================

const (
	readBufSize = 4096
	textBufSize = 4096
)

// Decoder turns a newline-delimited JSON byte stream into Fragments.
//
// Bytes may arrive split anywhere: inside a JSON object, inside a line
// terminator, or inside a multi-byte UTF-8 sequence. Incomplete UTF-8 is held
// back until the rest arrives; invalid bytes decode to U+FFFD. Text after the
// last newline is kept until more data arrives and is dropped at end of
// stream, so only newline-terminated lines ever become Fragments. Lines that
// are not valid JSON are dropped and counted.
//
// A Decoder can be pushed to with Feed/Flush, or pull from its reader with
// Next/All. It is not safe for concurrent use.
type Decoder struct {
	r       io.Reader
	readBuf []byte

	utf8    transform.Transformer
	pending []byte // undecoded tail: a partial UTF-8 sequence
	text    []byte // decoded text after the last newline
	dst     []byte

	queue     []Fragment
	malformed int

	flushed bool
	err     error
}

// NewDecoder creates a decoder reading from r. r may be nil when the decoder
// is only fed through Feed and Flush.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r: r,
		// Strips a leading BOM, as a browser TextDecoder does
		utf8: unicode.UTF8BOM.NewDecoder(),
		dst:  make([]byte, textBufSize),
	}
}

// Feed decodes chunk and returns every fragment completed by it.
func (d *Decoder) Feed(chunk []byte) []Fragment {
	d.write(chunk, false)
	return d.drain()
}

// Flush ends the stream. Text after the last newline is never parsed: it is
// discarded and, unless blank, counted as malformed. Further Feeds after
// Flush start a fresh stream.
func (d *Decoder) Flush() []Fragment {
	d.flush()
	return d.drain()
}

// Next returns the next fragment, reading from the underlying reader as
// needed. It returns io.EOF once the reader is exhausted and every fragment
// has been returned. A read error is returned as is, after any fragments
// completed before it.
func (d *Decoder) Next() (Fragment, error) {
	for len(d.queue) == 0 {
		if d.err != nil {
			return Fragment{}, d.err
		}
		if d.r == nil {
			d.err = io.EOF
			continue
		}
		if d.readBuf == nil {
			d.readBuf = make([]byte, readBufSize)
		}

		n, err := d.r.Read(d.readBuf)
		if n > 0 {
			d.write(d.readBuf[:n], false)
		}
		switch {
		case errors.Is(err, io.EOF):
			d.flush()
			d.err = io.EOF
		case err != nil:
			d.err = err
		}
	}

	f := d.queue[0]
	d.queue = d.queue[1:]
	return f, nil
}

// All returns an iterator over the remaining fragments. Iteration stops at
// end of stream or on the first read error; check Err afterwards.
func (d *Decoder) All() iter.Seq[Fragment] {
	return func(yield func(Fragment) bool) {
		for {
			f, err := d.Next()
			if err != nil {
				return
			}
			if !yield(f) {
				return
			}
		}
	}
}

// Err returns the read error that stopped the decoder, or nil at clean EOF.
func (d *Decoder) Err() error {
	if errors.Is(d.err, io.EOF) {
		return nil
	}
	return d.err
}

// Malformed returns how many complete lines failed to parse.
func (d *Decoder) Malformed() int {
	return d.malformed
}

// Buffered returns the decoded text held after the last newline.
func (d *Decoder) Buffered() string {
	return string(d.text)
}

// =============================================================================
// INTERNALS
// =============================================================================

func (d *Decoder) write(chunk []byte, atEOF bool) {
	if d.flushed {
		d.flushed = false
		d.utf8.Reset()
	}

	src := chunk
	if len(d.pending) > 0 {
		src = append(d.pending, chunk...)
	}

	for {
		nDst, nSrc, err := d.utf8.Transform(d.dst, src, atEOF)
		d.text = append(d.text, d.dst[:nDst]...)
		src = src[nSrc:]
		if errors.Is(err, transform.ErrShortDst) {
			continue
		}
		// nil, or ErrShortSrc with an incomplete sequence left in src
		break
	}
	d.pending = append(d.pending[:0:0], src...)

	d.splitLines()
}

func (d *Decoder) flush() {
	d.write(nil, true)
	d.pending = nil
	if len(bytes.TrimSpace(d.text)) > 0 {
		d.malformed++
	}
	d.text = d.text[:0]
	d.flushed = true
}

func (d *Decoder) splitLines() {
	rest := d.text
	for {
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			break
		}
		d.parse(rest[:i])
		rest = rest[i+1:]
	}
	d.text = append(d.text[:0], rest...)
}

func (d *Decoder) parse(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}

	var f Fragment
	if err := json.Unmarshal(line, &f); err != nil {
		d.malformed++
		return
	}
	d.queue = append(d.queue, f)
}

func (d *Decoder) drain() []Fragment {
	if len(d.queue) == 0 {
		return nil
	}
	out := d.queue
	d.queue = nil
	return out
}
