// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zlo

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"log"
	"reflect"
	"strings"
	"testing"
)

func container(hdr Header, data ...byte) []byte {
	buf := new(bytes.Buffer)
	err := NewEncoder(buf).WriteHeader(hdr)
	if err != nil {
		panic(err)
	}
	buf.Write(data)
	return buf.Bytes()
}

func decodeAll(t *testing.T, dec *Decoder) []Event {
	t.Helper()
	var evts []Event
	for {
		ev, err := dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return evts
			}
			t.Fatalf("could not decode event: %+v", err)
		}
		evts = append(evts, ev)
	}
}

func TestSampleRoundTrip(t *testing.T) {
	for _, nsig := range []int{0, 1, 2, 8, 12, 32, MaxSignals} {
		ws := []uint64{0, 1, 1<<nsig - 1, 0x5555555555555555 & (1<<nsig - 1)}
		dts := []uint64{0, 1, 126, 127, 128, 1<<20 + 3, 1<<(63-nsig) - 1}
		var (
			maxW  = uint64(1)<<nsig - 1
			maxDT = uint64(1)<<(64-nsig) - 1
		)
		for _, w := range ws {
			if w > maxW {
				continue
			}
			for _, dt := range dts {
				if dt > maxDT {
					continue
				}
				raw := AppendSample(nil, w, dt, nsig)
				var (
					acc uvarint
					u   uint64
					ok  bool
				)
				for i, b := range raw {
					u, ok = acc.add(b)
					if ok != (i == len(raw)-1) {
						t.Fatalf("nsig=%d, w=%d, dt=%d: invalid termination at byte %d", nsig, w, dt, i)
					}
				}
				gw, gdt := SplitSample(u, nsig)
				if gw != w || gdt != dt {
					t.Fatalf(
						"nsig=%d: invalid round-trip: got=(%d, %d), want=(%d, %d)",
						nsig, gw, gdt, w, dt,
					)
				}
				if want, _ := binary.Uvarint(raw); want != u {
					t.Fatalf("nsig=%d: invalid varint: got=%d, want=%d", nsig, u, want)
				}
			}
		}
	}
}

func TestBurstSkip(t *testing.T) {
	for _, tc := range []struct {
		ws, burst int
		word      []byte // encoding of one sample word
	}{
		{ws: 1, burst: 4, word: []byte{0x01}},
		{ws: 1, burst: 7, word: []byte{0x7f}},
		{ws: 2, burst: 3, word: []byte{0x81, 0x00}},
		{ws: 4, burst: 5, word: []byte{0xff, 0xff, 0xff, 0x01}},
	} {
		t.Run("", func(t *testing.T) {
			var data []byte
			for i := 0; i < 3*tc.burst; i++ {
				if i%tc.burst == 0 {
					// markers must never reach the varint decoder.
					data = append(data, bytes.Repeat([]byte{0x80}, tc.ws)...)
					continue
				}
				data = append(data, tc.word...)
			}
			raw := container(Header{
				Version:   1,
				NSignals:  1,
				WordSize:  uint8(tc.ws),
				BurstSize: uint32(tc.burst),
			}, data...)

			msg := new(strings.Builder)
			dec := NewDecoder(bytes.NewReader(raw), WithLogger(log.New(msg, "", 0)))
			_ = decodeAll(t, dec)

			if got, want := dec.Samples(), 3*tc.burst-3; got != want {
				t.Fatalf("invalid number of samples: got=%d, want=%d", got, want)
			}
			if msg.Len() != 0 {
				t.Fatalf("unexpected warnings:\n%s", msg.String())
			}
		})
	}
}

func TestFirstSample(t *testing.T) {
	for _, w := range []uint64{0, 0x1f, 0x16, 0x01} {
		const nsig = 5
		raw := container(
			Header{Version: 1, NSignals: nsig, WordSize: 1, BurstSize: 1024},
			AppendSample([]byte{0x00}, w, 0, nsig)...,
		)
		dec := NewDecoder(bytes.NewReader(raw))
		evts := decodeAll(t, dec)
		if len(evts) != 1 {
			t.Fatalf("invalid number of events: got=%d, want=1", len(evts))
		}
		ev := evts[0]
		if ev.Time != 1 {
			t.Fatalf("invalid time: got=%d, want=1", ev.Time)
		}
		if got, want := len(ev.Changes), nsig; got != want {
			t.Fatalf("w=0x%x: invalid number of changes: got=%d, want=%d", w, got, want)
		}
		for k, c := range ev.Changes {
			if c.Signal != k {
				t.Fatalf("invalid signal order: got=%d, want=%d", c.Signal, k)
			}
			if got, want := c.Value, uint8(w>>k)&1; got != want {
				t.Fatalf("w=0x%x: invalid value for signal %d: got=%d, want=%d", w, k, got, want)
			}
		}
	}
}

func TestWorkedExample(t *testing.T) {
	raw := container(
		Header{Version: 1, NSignals: 2, WordSize: 1, BurstSize: 1000, TransferSize: 4},
		0xff, // marker
		0x01, 0x05, 0x02,
	)

	out := new(strings.Builder)
	hdr, n, err := Convert(out, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("could not convert: %+v", err)
	}
	if n != 3 {
		t.Fatalf("invalid number of samples: got=%d, want=3", n)
	}
	if hdr.NSignals != 2 {
		t.Fatalf("invalid header: got=%+v", hdr)
	}

	const want = `$version zlo2vcd $end
$comment 2 channels $end
$timescale 10 ns $end
$scope module zlogan $end
$var wire 1 A x00 $end
$var wire 1 B x01 $end
$upscope $end
$enddefinitions $end
#1 1A 0B
#4 0A 1B
`
	if got := out.String(); got != want {
		t.Fatalf("invalid VCD:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestHeaderCompat(t *testing.T) {
	data := []byte{0x00, 0x01, 0x05, 0x02, 0x03}
	v0 := append([]byte{1, 2, 1, 0, 0xe8, 0x03, 0, 0}, data...)
	v8 := append([]byte{1, 2, 1, 8, 0xe8, 0x03, 0, 0}, data...)
	v16 := append([]byte{1, 2, 1, 16, 0xe8, 0x03, 0, 0, 42, 0, 0, 0, 0xde, 0xad, 0xbe, 0xef}, data...)

	decode := func(raw []byte) (Header, []Event) {
		dec := NewDecoder(bytes.NewReader(raw))
		hdr, err := dec.ReadHeader()
		if err != nil {
			t.Fatalf("could not read header: %+v", err)
		}
		return hdr, decodeAll(t, dec)
	}

	h0, e0 := decode(v0)
	h8, e8 := decode(v8)
	if !reflect.DeepEqual(h0, h8) {
		t.Fatalf("invalid header:\ngot= %+v\nwant=%+v", h0, h8)
	}
	if !reflect.DeepEqual(e0, e8) {
		t.Fatalf("invalid events:\ngot= %+v\nwant=%+v", e0, e8)
	}
	if h8.BurstSize != 1000 || h8.TransferSize != 0 || h8.HdrLen != 8 {
		t.Fatalf("invalid v8 header: %+v", h8)
	}

	h16, e16 := decode(v16)
	if h16.TransferSize != 42 || h16.HdrLen != 16 {
		t.Fatalf("invalid v16 header: %+v", h16)
	}
	if !reflect.DeepEqual(e16, e8) {
		t.Fatalf("invalid events:\ngot= %+v\nwant=%+v", e16, e8)
	}

	// headers shorter than HeaderLen carry no transfer size.
	for _, n := range []int{9, 10, 11} {
		raw := append([]byte{1, 2, 1, byte(n), 0xe8, 0x03, 0, 0}, bytes.Repeat([]byte{0xaa}, n-8)...)
		raw = append(raw, data...)
		hdr, evts := decode(raw)
		if hdr.BurstSize != 1000 || hdr.TransferSize != 0 || int(hdr.HdrLen) != n {
			t.Fatalf("invalid v%d header: %+v", n, hdr)
		}
		if !reflect.DeepEqual(evts, e8) {
			t.Fatalf("invalid v%d events:\ngot= %+v\nwant=%+v", n, evts, e8)
		}
	}
}

func TestConvertHeaderLen10(t *testing.T) {
	raw := []byte{
		1, 2, 1, 10, 0xe8, 0x03, 0, 0, 0xaa, 0xbb,
		0x00, 0x01, 0x05, 0x02,
	}
	want := new(bytes.Buffer)
	_, nwant, err := Convert(want, bytes.NewReader([]byte{
		1, 2, 1, 8, 0xe8, 0x03, 0, 0,
		0x00, 0x01, 0x05, 0x02,
	}))
	if err != nil {
		t.Fatalf("could not convert v8 container: %+v", err)
	}

	got := new(bytes.Buffer)
	hdr, n, err := Convert(got, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("could not convert v10 container: %+v", err)
	}
	if hdr.HdrLen != 10 || hdr.BurstSize != 1000 || hdr.TransferSize != 0 {
		t.Fatalf("invalid header: %+v", hdr)
	}
	if n != nwant || n == 0 {
		t.Fatalf("invalid number of samples: got=%d, want=%d", n, nwant)
	}
	if got.String() != want.String() {
		t.Fatalf("invalid VCD:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestHeaderErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		raw  []byte
		want error
	}{
		{"empty", nil, ErrHeader},
		{"short-prefix", []byte{1, 2}, ErrHeader},
		{"short-v8", []byte{1, 2, 1, 8, 0}, ErrHeader},
		{"short-v12", []byte{1, 2, 1, 12, 0, 0, 0, 0, 1}, ErrHeader},
		{"short-extra", []byte{1, 2, 1, 14, 0, 0, 0, 0, 1, 0, 0, 0, 1}, ErrHeader},
		{"hdr-len-5", []byte{1, 2, 1, 5, 0, 0, 0, 0}, ErrHeader},
		{"hdr-len-7", []byte{1, 2, 1, 7, 0, 0, 0, 0}, ErrHeader},
		{"short-v10", []byte{1, 2, 1, 10, 0, 0, 0, 0, 0}, ErrHeader},
		{"word-size-0", []byte{1, 2, 0, 8, 0, 0, 0, 0}, ErrHeader},
		{"nsignals", []byte{1, 58, 8, 8, 0, 0, 0, 0}, ErrSignals},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dec := NewDecoder(bytes.NewReader(tc.raw))
			_, err := dec.ReadHeader()
			if !errors.Is(err, tc.want) {
				t.Fatalf("invalid error: got=%+v, want=%+v", err, tc.want)
			}
			_, err = dec.Next()
			if !errors.Is(err, tc.want) {
				t.Fatalf("invalid sticky error: got=%+v, want=%+v", err, tc.want)
			}

			out := new(bytes.Buffer)
			_, _, err = Convert(out, bytes.NewReader(tc.raw))
			if !errors.Is(err, tc.want) {
				t.Fatalf("invalid convert error: got=%+v, want=%+v", err, tc.want)
			}
			if out.Len() != 0 {
				t.Fatalf("unexpected output: %q", out.Bytes())
			}
		})
	}
}

func TestMalformedSamples(t *testing.T) {
	for _, tc := range []struct {
		name string
		data []byte
		want string
		n    int
	}{
		{
			name: "truncated",
			data: []byte{0x00, 0x01, 0x81},
			want: "warning: truncated input: unterminated sample (1 bytes)\n",
			n:    1,
		},
		{
			name: "too-long",
			data: append(append([]byte{0x00}, bytes.Repeat([]byte{0x80}, 11)...), 0x01),
			want: "warning: malformed input: sample longer than 10 bytes (offset=11)\n",
			n:    1,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			raw := container(Header{Version: 1, NSignals: 3, WordSize: 1, BurstSize: 1 << 20}, tc.data...)
			msg := new(strings.Builder)
			dec := NewDecoder(bytes.NewReader(raw), WithLogger(log.New(msg, "", 0)))
			_ = decodeAll(t, dec)
			if got, want := msg.String(), tc.want; got != want {
				t.Fatalf("invalid warnings:\ngot= %q\nwant=%q", got, want)
			}
			if got, want := dec.Samples(), tc.n; got != want {
				t.Fatalf("invalid number of samples: got=%d, want=%d", got, want)
			}
		})
	}
}

func TestZeroBurstSize(t *testing.T) {
	raw := container(Header{Version: 1, NSignals: 2, WordSize: 1}, 0x01, 0x05, 0x02)
	msg := new(strings.Builder)
	dec := NewDecoder(bytes.NewReader(raw), WithLogger(log.New(msg, "", 0)))
	evts := decodeAll(t, dec)
	if got, want := len(evts), 2; got != want {
		t.Fatalf("invalid number of events: got=%d, want=%d", got, want)
	}
	if !strings.Contains(msg.String(), "burst size is zero") {
		t.Fatalf("missing warning: %q", msg.String())
	}
}

func TestLegacy(t *testing.T) {
	raw := []byte{
		0xde, 0xad, 0xbe, 0xef, // marker word
		0x01, 0x05, 0x02,
	}
	dec := NewDecoder(bytes.NewReader(raw), WithLegacy(2))
	hdr, err := dec.ReadHeader()
	if err != nil {
		t.Fatalf("could not read legacy header: %+v", err)
	}
	if got, want := hdr, LegacyHeader(2); got != want {
		t.Fatalf("invalid header: got=%+v, want=%+v", got, want)
	}

	got := decodeAll(t, dec)
	want := []Event{
		{Time: 1, Changes: []Change{{0, 1}, {1, 0}}},
		{Time: 4, Changes: []Change{{0, 0}, {1, 1}}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid events:\ngot= %+v\nwant=%+v", got, want)
	}

	if got, want := LegacyHeader(-1).NSignals, uint8(4); got != want {
		t.Fatalf("invalid default legacy signals: got=%d, want=%d", got, want)
	}
}

func TestEncoder(t *testing.T) {
	buf := new(bytes.Buffer)
	enc := NewEncoder(buf)

	err := enc.WriteBlock(bytes.NewReader(nil), 1)
	if err == nil {
		t.Fatalf("expected an error writing a block before the header")
	}

	err = enc.WriteHeader(Header{
		Version:      1,
		NSignals:     12,
		WordSize:     2,
		HdrLen:       8,
		BurstSize:    0x01020304,
		TransferSize: 0x0a0b0c0d,
	})
	if err != nil {
		t.Fatalf("could not write header: %+v", err)
	}

	want := []byte{1, 12, 2, 12, 4, 3, 2, 1, 0xd, 0xc, 0xb, 0xa}
	if got := buf.Bytes(); !bytes.Equal(got, want) {
		t.Fatalf("invalid header:\ngot= %v\nwant=%v", got, want)
	}

	block := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	err = enc.WriteBlock(bytes.NewReader(block), 3)
	if err != nil {
		t.Fatalf("could not write block: %+v", err)
	}
	err = enc.WriteBlock(bytes.NewReader(block), 0)
	if err != nil {
		t.Fatalf("could not write empty block: %+v", err)
	}
	want = append(want, block[:6]...)
	if got := buf.Bytes(); !bytes.Equal(got, want) {
		t.Fatalf("invalid content:\ngot= %v\nwant=%v", got, want)
	}

	err = enc.WriteBlock(bytes.NewReader(block), 5)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("invalid error: got=%+v, want=%+v", err, io.ErrUnexpectedEOF)
	}
}

func TestCodec(t *testing.T) {
	const nsig = 3
	samples := []struct{ w, dt uint64 }{
		{5, 0}, {5, 3}, {4, 0}, {0, 200}, {7, 1 << 30}, {7, 0},
	}
	var data []byte
	data = append(data, 0xaa) // marker
	for _, s := range samples {
		data = AppendSample(data, s.w, s.dt, nsig)
	}

	raw := container(Header{Version: 1, NSignals: nsig, WordSize: 1, BurstSize: 1 << 16}, data...)
	dec := NewDecoder(bytes.NewReader(raw))
	got := decodeAll(t, dec)
	want := []Event{
		{Time: 1, Changes: []Change{{0, 1}, {1, 0}, {2, 1}}},
		{Time: 6, Changes: []Change{{0, 0}}},
		{Time: 207, Changes: []Change{{2, 0}}},
		{Time: 208 + 1<<30, Changes: []Change{{0, 1}, {1, 1}, {2, 1}}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid events:\ngot= %+v\nwant=%+v", got, want)
	}
	if got, want := dec.Samples(), len(samples); got != want {
		t.Fatalf("invalid number of samples: got=%d, want=%d", got, want)
	}
}
