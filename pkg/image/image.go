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
	"expvar"
	"os"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/rabbitstack/winspect/pkg/errs"
	"github.com/rabbitstack/winspect/pkg/util/va"
	"golang.org/x/sys/windows"
)

// imagesMapped counts file views established by Map.
var imagesMapped = expvar.NewInt("image.mapped")

// MappedImage is a portable executable file mapped into the calling process
// as a straight file view. Since the view preserves raw file offsets, RVA
// resolution performs the section-relative translation that the OS loader
// would otherwise do.
type MappedImage struct {
	path     string
	viewBase va.Address
	viewSize uint64
	is64     bool
	nt32     *ImageNtHeaders32
	nt64     *ImageNtHeaders64
	secs     []ImageSectionHeader
}

// Map opens the executable image at path, maps it into the address space of
// the calling process and validates its headers. The file and mapping handles
// are closed eagerly, the view alone keeps the mapping alive until Close.
func Map(path string) (*MappedImage, error) {
	if path == "" {
		return nil, errors.Wrap(errs.ErrInvalidArg, "empty image path")
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to stat %s", path)
	}
	size := uint64(fi.Size())
	u16path, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, err
	}
	file, err := windows.CreateFile(
		u16path,
		windows.GENERIC_READ|windows.GENERIC_EXECUTE,
		windows.FILE_SHARE_READ,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_ATTRIBUTE_NORMAL,
		0,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open image %s", path)
	}
	mapping, err := windows.CreateFileMapping(file, nil, windows.PAGE_READONLY, 0, 0, nil)
	if err != nil {
		_ = windows.CloseHandle(file)
		return nil, errors.Wrapf(err, "unable to create section for %s", path)
	}
	view, err := windows.MapViewOfFile(mapping, windows.FILE_MAP_READ, 0, 0, 0)
	// the view holds its own reference on the section object
	_ = windows.CloseHandle(mapping)
	_ = windows.CloseHandle(file)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to map view of %s", path)
	}

	img := &MappedImage{path: path, viewBase: va.Address(view), viewSize: size}
	if err := img.parse(unsafe.Slice((*byte)(unsafe.Pointer(view)), size)); err != nil {
		_ = windows.UnmapViewOfFile(view)
		return nil, err
	}
	imagesMapped.Add(1)
	return img, nil
}

// parse validates the image headers over the raw view and captures pointers
// to the NT headers and the section table. The slice must alias memory that
// outlives the mapped image.
func (img *MappedImage) parse(view []byte) error {
	if len(view) < int(unsafe.Sizeof(ImageDosHeader{})) {
		return errors.Wrap(errs.ErrInvalidImageFormat, "image smaller than the DOS header")
	}
	dos := (*ImageDosHeader)(unsafe.Pointer(&view[0]))
	if dos.Magic != dosSignature {
		return errors.Wrap(errs.ErrInvalidImageFormat, "DOS header magic mismatch")
	}
	// the PE32 layout bounds the smallest well-formed header extent. The
	// wider PE32+ bound is enforced after consulting the optional magic
	if dos.Lfanew <= 0 || uint64(dos.Lfanew)+uint64(unsafe.Sizeof(ImageNtHeaders32{})) > uint64(len(view)) {
		return errors.Wrap(errs.ErrInvalidImageFormat, "new header offset out of bounds")
	}
	nt := unsafe.Pointer(&view[dos.Lfanew])
	if *(*uint32)(nt) != ntSignature {
		return errors.Wrap(errs.ErrInvalidImageFormat, "PE signature mismatch")
	}

	fileHdr := (*ImageFileHeader)(unsafe.Pointer(uintptr(nt) + unsafe.Offsetof(ImageNtHeaders64{}.FileHeader)))
	opt := unsafe.Pointer(uintptr(nt) + unsafe.Offsetof(ImageNtHeaders64{}.OptionalHeader))

	switch *(*uint16)(opt) {
	case optionalHeader32Magic:
		img.nt32 = (*ImageNtHeaders32)(nt)
	case optionalHeader64Magic:
		if uint64(dos.Lfanew)+uint64(unsafe.Sizeof(ImageNtHeaders64{})) > uint64(len(view)) {
			return errors.Wrap(errs.ErrInvalidImageFormat, "new header offset out of bounds")
		}
		img.is64 = true
		img.nt64 = (*ImageNtHeaders64)(nt)
	default:
		return errors.Wrap(errs.ErrInvalidImageFormat, "unknown optional header magic")
	}

	// the section table starts right after the optional header whose size
	// is dictated by the file header rather than the magic
	secOffset := uintptr(opt) + uintptr(fileHdr.SizeOfOptionalHeader) - uintptr(unsafe.Pointer(&view[0]))
	n := int(fileHdr.NumberOfSections)
	if secOffset+uintptr(n)*unsafe.Sizeof(ImageSectionHeader{}) > uintptr(len(view)) {
		return errors.Wrap(errs.ErrInvalidImageFormat, "section table out of bounds")
	}
	if n > 0 {
		img.secs = unsafe.Slice((*ImageSectionHeader)(unsafe.Pointer(&view[secOffset])), n)
	}

	return nil
}

// Close unmaps the image view. It is safe to call on an already
// closed image.
func (img *MappedImage) Close() error {
	if img.viewBase.IsZero() {
		return nil
	}
	err := windows.UnmapViewOfFile(img.viewBase.Uintptr())
	img.viewBase = 0
	img.nt32, img.nt64, img.secs = nil, nil, nil
	return err
}

// Path returns the file path the image was mapped from.
func (img *MappedImage) Path() string { return img.path }

// ViewBase returns the base address of the mapped view.
func (img *MappedImage) ViewBase() va.Address { return img.viewBase }

// Is64 indicates whether the image has the PE32+ optional header format.
func (img *MappedImage) Is64() bool { return img.is64 }

// Sections returns the section table. The headers alias the mapped view
// and are only valid until Close.
func (img *MappedImage) Sections() []ImageSectionHeader { return img.secs }

// NtHeaders32 returns the PE32 headers or nil for a 64-bit image.
func (img *MappedImage) NtHeaders32() *ImageNtHeaders32 { return img.nt32 }

// NtHeaders64 returns the PE32+ headers or nil for a 32-bit image.
func (img *MappedImage) NtHeaders64() *ImageNtHeaders64 { return img.nt64 }

// EntryPoint returns the relative address of the image entry point.
func (img *MappedImage) EntryPoint() uint32 {
	if img.is64 {
		return img.nt64.OptionalHeader.AddressOfEntryPoint
	}
	return img.nt32.OptionalHeader.AddressOfEntryPoint
}

// SizeOfImage returns the virtual size the loader reserves for the image.
func (img *MappedImage) SizeOfImage() uint32 {
	if img.is64 {
		return img.nt64.OptionalHeader.SizeOfImage
	}
	return img.nt32.OptionalHeader.SizeOfImage
}

// RVAToSection locates the first section whose raw extent contains the
// given relative virtual address.
func (img *MappedImage) RVAToSection(rva uint32) (*ImageSectionHeader, error) {
	for i := range img.secs {
		sec := &img.secs[i]
		if rva >= sec.VirtualAddress && rva < sec.VirtualAddress+sec.SizeOfRawData {
			return sec, nil
		}
	}
	return nil, errors.Wrapf(errs.ErrRVANotFound, "rva %#x", rva)
}

// RVAToVA translates a relative virtual address to the corresponding
// address inside the mapped view. Since the view mirrors the file layout,
// the translation goes through the owning section raw pointer.
func (img *MappedImage) RVAToVA(rva uint32) (va.Address, error) {
	sec, err := img.RVAToSection(rva)
	if err != nil {
		return 0, err
	}
	return img.viewBase.Inc(uint64(rva - sec.VirtualAddress + sec.PointerToRawData)), nil
}
