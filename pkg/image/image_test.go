/*
 * Copyright 2021-2022 by Nedim Sabic Sabic
 * https://www.fibratus.io
 * All Rights Reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package image

import (
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/rabbitstack/winspect/pkg/errs"
	"github.com/rabbitstack/winspect/pkg/util/va"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawImage64 lays out a minimal PE32+ file view. The new header starts at
// offset 128 and the section table immediately follows the optional header.
type rawImage64 struct {
	dos  ImageDosHeader
	pad  [64 - unsafe.Sizeof(ImageDosHeader{})%64]byte
	nt   ImageNtHeaders64
	secs [2]ImageSectionHeader
}

func newRawImage64() *rawImage64 {
	img := &rawImage64{}
	img.dos.Magic = dosSignature
	img.dos.Lfanew = int32(unsafe.Offsetof(img.nt))
	img.nt.Signature = ntSignature
	img.nt.FileHeader.NumberOfSections = 2
	img.nt.FileHeader.SizeOfOptionalHeader = uint16(unsafe.Sizeof(ImageOptionalHeader64{}))
	img.nt.OptionalHeader.Magic = optionalHeader64Magic
	img.nt.OptionalHeader.AddressOfEntryPoint = 0x1040
	img.nt.OptionalHeader.SizeOfImage = 0x3000

	copy(img.secs[0].Name[:], ".text")
	img.secs[0].VirtualAddress = 0x1000
	img.secs[0].VirtualSize = 0x180
	img.secs[0].SizeOfRawData = 0x200
	img.secs[0].PointerToRawData = 0x400

	copy(img.secs[1].Name[:], ".data")
	img.secs[1].VirtualAddress = 0x2000
	img.secs[1].VirtualSize = 0x80
	img.secs[1].SizeOfRawData = 0x200
	img.secs[1].PointerToRawData = 0x600

	return img
}

func (r *rawImage64) bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(r)), unsafe.Sizeof(*r))
}

func TestParse64(t *testing.T) {
	raw := newRawImage64()
	view := raw.bytes()

	img := &MappedImage{}
	require.NoError(t, img.parse(view))

	assert.True(t, img.Is64())
	require.NotNil(t, img.NtHeaders64())
	assert.Nil(t, img.NtHeaders32())
	assert.Equal(t, uint32(0x1040), img.EntryPoint())
	assert.Equal(t, uint32(0x3000), img.SizeOfImage())

	require.Len(t, img.Sections(), 2)
	assert.Equal(t, ".text", img.Sections()[0].String())
	assert.Equal(t, ".data", img.Sections()[1].String())
}

func TestParse32(t *testing.T) {
	raw := newRawImage64()
	// shrink the optional header to the PE32 variant. The section table
	// moves accordingly, so only the header fields are probed here.
	nt32 := (*ImageNtHeaders32)(unsafe.Pointer(&raw.nt))
	nt32.FileHeader.NumberOfSections = 0
	nt32.FileHeader.SizeOfOptionalHeader = uint16(unsafe.Sizeof(ImageOptionalHeader32{}))
	nt32.OptionalHeader.Magic = optionalHeader32Magic
	nt32.OptionalHeader.AddressOfEntryPoint = 0x2080
	nt32.OptionalHeader.SizeOfImage = 0x5000

	img := &MappedImage{}
	require.NoError(t, img.parse(raw.bytes()))

	assert.False(t, img.Is64())
	require.NotNil(t, img.NtHeaders32())
	assert.Nil(t, img.NtHeaders64())
	assert.Equal(t, uint32(0x2080), img.EntryPoint())
	assert.Equal(t, uint32(0x5000), img.SizeOfImage())
}

// rawImage32 lays out the smallest well-formed PE32 view whose file ends
// right after the 32-bit optional header.
type rawImage32 struct {
	dos ImageDosHeader
	pad [64 - unsafe.Sizeof(ImageDosHeader{})%64]byte
	nt  ImageNtHeaders32
}

func TestParse32MinimalView(t *testing.T) {
	raw := &rawImage32{}
	raw.dos.Magic = dosSignature
	raw.dos.Lfanew = int32(unsafe.Offsetof(raw.nt))
	raw.nt.Signature = ntSignature
	raw.nt.FileHeader.SizeOfOptionalHeader = uint16(unsafe.Sizeof(ImageOptionalHeader32{}))
	raw.nt.OptionalHeader.Magic = optionalHeader32Magic
	raw.nt.OptionalHeader.AddressOfEntryPoint = 0x1000

	view := unsafe.Slice((*byte)(unsafe.Pointer(raw)), unsafe.Sizeof(*raw))
	img := &MappedImage{}
	require.NoError(t, img.parse(view))
	assert.False(t, img.Is64())
	assert.Equal(t, uint32(0x1000), img.EntryPoint())
	assert.Empty(t, img.Sections())

	// the PE32+ header extent can't be satisfied by the narrow view
	raw.nt.OptionalHeader.Magic = optionalHeader64Magic
	require.ErrorIs(t, (&MappedImage{}).parse(view), errs.ErrInvalidImageFormat)
}

func TestParseRejectsMalformedImages(t *testing.T) {
	var tests = []struct {
		name   string
		mangle func(*rawImage64)
	}{
		{"bad dos magic", func(r *rawImage64) { r.dos.Magic = 0x4142 }},
		{"bad pe signature", func(r *rawImage64) { r.nt.Signature = 0xdeadbeef }},
		{"bad optional magic", func(r *rawImage64) { r.nt.OptionalHeader.Magic = 0x999 }},
		{"negative new header offset", func(r *rawImage64) { r.dos.Lfanew = -4 }},
		{"new header beyond view", func(r *rawImage64) { r.dos.Lfanew = 1 << 24 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := newRawImage64()
			tt.mangle(raw)
			img := &MappedImage{}
			err := img.parse(raw.bytes())
			require.ErrorIs(t, err, errs.ErrInvalidImageFormat)
		})
	}
}

func TestRVAToSection(t *testing.T) {
	raw := newRawImage64()
	img := &MappedImage{}
	require.NoError(t, img.parse(raw.bytes()))

	sec, err := img.RVAToSection(0x1000)
	require.NoError(t, err)
	assert.Equal(t, ".text", sec.String())

	// the raw extent goes beyond the virtual size
	sec, err = img.RVAToSection(0x11ff)
	require.NoError(t, err)
	assert.Equal(t, ".text", sec.String())

	sec, err = img.RVAToSection(0x2010)
	require.NoError(t, err)
	assert.Equal(t, ".data", sec.String())

	// one past the raw end of .text and before .data
	_, err = img.RVAToSection(0x1200)
	require.ErrorIs(t, err, errs.ErrRVANotFound)

	_, err = img.RVAToSection(0x8000)
	require.ErrorIs(t, err, errs.ErrRVANotFound)
}

func TestRVAToVA(t *testing.T) {
	raw := newRawImage64()
	view := raw.bytes()
	img := &MappedImage{viewBase: va.Address(uintptr(unsafe.Pointer(&view[0])))}
	require.NoError(t, img.parse(view))

	addr, err := img.RVAToVA(0x1010)
	require.NoError(t, err)
	assert.Equal(t, img.ViewBase().Inc(0x410), addr)

	addr, err = img.RVAToVA(0x2000)
	require.NoError(t, err)
	assert.Equal(t, img.ViewBase().Inc(0x600), addr)

	_, err = img.RVAToVA(0x7000)
	require.ErrorIs(t, err, errs.ErrRVANotFound)
}

func TestMapImage(t *testing.T) {
	path := filepath.Join(os.Getenv("WINDIR"), "system32", "kernel32.dll")
	img, err := Map(path)
	require.NoError(t, err)
	defer func() {
		_ = img.Close()
	}()

	assert.Equal(t, path, img.Path())
	assert.False(t, img.ViewBase().IsZero())
	assert.NotEmpty(t, img.Sections())

	// the entry point must live inside some section
	if rva := img.EntryPoint(); rva != 0 {
		_, err := img.RVAToSection(rva)
		assert.NoError(t, err)
	}

	require.NoError(t, img.Close())
	// closing twice is a no-op
	require.NoError(t, img.Close())
}

func TestInspectImage(t *testing.T) {
	path := filepath.Join(os.Getenv("WINDIR"), "system32", "notepad.exe")
	meta, err := Inspect(path)
	require.NoError(t, err)

	assert.False(t, meta.IsDLL)
	assert.False(t, meta.IsDriver)
	assert.NotEmpty(t, meta.Imports)
	assert.NotEmpty(t, meta.Sections)
}
