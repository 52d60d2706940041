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

// Package loader discovers the modules loaded inside a running process by
// traversing its loader bookkeeping directly out of the target address
// space. There is no kernel enumeration call yielding the full-fidelity
// module list across bitness, so the walker reads the process environment
// block, follows the loader data pointer, and visits the in-load-order
// circular list node by node through the memory access layer. The native
// walker operates on address-width-matching layouts, while the WOW64 walker
// consumes the 32-bit layouts embedded in a 64-bit host process.
package loader

import (
	"unsafe"

	"github.com/pkg/errors"
	"github.com/rabbitstack/winspect/pkg/errs"
	"github.com/rabbitstack/winspect/pkg/mem"
	"github.com/rabbitstack/winspect/pkg/native"
	"github.com/rabbitstack/winspect/pkg/query"
	"github.com/rabbitstack/winspect/pkg/sys"
	"github.com/rabbitstack/winspect/pkg/util/va"
	"golang.org/x/sys/windows"
)

// maxHops bounds the number of visited list nodes. A list that never wraps
// back to its head indicates corrupted or adversarial loader structures.
const maxHops = 4096

// Module describes a single module mapped into the target process. The
// strings are deep-copied out of the target address space, so the record
// may be retained beyond the callback invocation.
type Module struct {
	BaseAddress va.Address
	EntryPoint  va.Address
	Size        uint32
	Path        string
	Name        string
}

// Callback is invoked once per discovered module. Returning Break halts
// the walk and flags the found outcome.
type Callback func(Module) native.Flow

// walker abstracts the bitness-specific loader layout: how to locate the
// environment block, how to reach the list head, and how to decode one
// list node. The traversal algorithm itself is shared.
type walker interface {
	// peb returns the process environment block address.
	peb() (va.Address, error)
	// head verifies the loader is initialized and returns the list head
	// address along with the first forward link.
	head(peb va.Address) (va.Address, va.Address, error)
	// node decodes the module entry anchored at the link and returns the
	// next forward link.
	node(link va.Address) (Module, va.Address, error)
}

// Walk traverses the native-width loader list of the target process. If the
// target runs under WOW64 its native environment block is not visible at
// this width, which is reported as ErrWow64Redirection. The callback stops
// the walk by returning Break. Any read failure mid-walk aborts with that
// error, a half-walked list is not retried.
func Walk(proc windows.Handle, cb Callback) (bool, error) {
	return walk(&nativeWalker{space: mem.Remote(proc), proc: proc}, cb)
}

// WalkWow64 traverses the 32-bit loader list of a WOW64 process. The
// algorithm and stop conditions match the native walk, every address and
// structure is the 32-bit layout equivalent.
func WalkWow64(proc windows.Handle, cb Callback) (bool, error) {
	return walk(&wow64Walker{space: mem.Remote(proc), proc: proc}, cb)
}

// Modules collects all modules of the target process. The native walk is
// attempted first and transparently falls back to the WOW64 walk when the
// target has no native loader view.
func Modules(proc windows.Handle) ([]Module, error) {
	mods := make([]Module, 0)
	collect := func(m Module) native.Flow {
		mods = append(mods, m)
		return native.Continue
	}
	_, err := Walk(proc, collect)
	if errors.Is(err, errs.ErrWow64Redirection) {
		mods = mods[:0]
		_, err = WalkWow64(proc, collect)
	}
	if err != nil {
		return nil, err
	}
	return mods, nil
}

// IsWow64 determines if the process runs a 32-bit workload inside
// the 64-bit host.
func IsWow64(proc windows.Handle) (bool, error) {
	peb32, err := query.ProcessInfo[uintptr](proc, windows.ProcessWow64Information)
	if err != nil {
		return false, err
	}
	return *peb32 != 0, nil
}

func walk(w walker, cb Callback) (bool, error) {
	if cb == nil {
		return false, errs.ErrInvalidArg
	}
	peb, err := w.peb()
	if err != nil {
		return false, err
	}
	head, cur, err := w.head(peb)
	if err != nil {
		return false, err
	}
	for hops := 0; cur != head; hops++ {
		if hops >= maxHops {
			return false, errs.ErrTooManyHops
		}
		m, next, err := w.node(cur)
		if err != nil {
			return false, err
		}
		// null-base nodes are reserved placeholders, not real modules
		if !m.BaseAddress.IsZero() {
			if cb(m) == native.Break {
				return true, nil
			}
		}
		cur = next
	}
	return false, nil
}

type nativeWalker struct {
	space mem.AddressSpace
	proc  windows.Handle
}

func (w *nativeWalker) peb() (va.Address, error) {
	pbi, err := query.ProcessInfo[windows.PROCESS_BASIC_INFORMATION](w.proc, windows.ProcessBasicInformation)
	if err != nil {
		return 0, err
	}
	if pbi.PebBaseAddress == nil {
		return 0, errs.ErrWow64Redirection
	}
	return va.Address(uintptr(unsafe.Pointer(pbi.PebBaseAddress))), nil
}

func (w *nativeWalker) head(peb va.Address) (va.Address, va.Address, error) {
	ldr, err := mem.ReadAs[uintptr](w.space, peb.Inc(uint64(unsafe.Offsetof(windows.PEB{}.Ldr))))
	if err != nil {
		return 0, 0, err
	}
	data, err := mem.ReadAs[sys.PebLdrData](w.space, va.Address(*ldr))
	if err != nil {
		return 0, 0, err
	}
	if data.Initialized == 0 {
		return 0, 0, errs.ErrLoaderNotInitialized
	}
	head := va.Address(*ldr).Inc(uint64(unsafe.Offsetof(sys.PebLdrData{}.InLoadOrderModuleList)))
	return head, va.Address(data.InLoadOrderModuleList.Flink), nil
}

func (w *nativeWalker) node(link va.Address) (Module, va.Address, error) {
	// the in-load-order links sit at the very beginning of the entry,
	// so the link address is also the entry address
	entry, err := mem.ReadAs[sys.LdrDataTableEntry](w.space, link)
	if err != nil {
		return Module{}, 0, err
	}
	m := Module{
		BaseAddress: va.Address(entry.DllBase),
		EntryPoint:  va.Address(entry.EntryPoint),
		Size:        entry.SizeOfImage,
	}
	m.Path, err = mem.ReadUTF16(w.space, va.Address(uintptr(unsafe.Pointer(entry.FullDllName.Buffer))), uint(entry.FullDllName.Length))
	if err != nil {
		return Module{}, 0, err
	}
	m.Name, err = mem.ReadUTF16(w.space, va.Address(uintptr(unsafe.Pointer(entry.BaseDllName.Buffer))), uint(entry.BaseDllName.Length))
	if err != nil {
		return Module{}, 0, err
	}
	return m, va.Address(entry.InLoadOrderLinks.Flink), nil
}

type wow64Walker struct {
	space mem.AddressSpace
	proc  windows.Handle
}

func (w *wow64Walker) peb() (va.Address, error) {
	peb32, err := query.ProcessInfo[uintptr](w.proc, windows.ProcessWow64Information)
	if err != nil {
		return 0, err
	}
	if *peb32 == 0 {
		return 0, errors.Wrap(errs.ErrAccessDenied, "target has no WOW64 loader view")
	}
	return va.Address(*peb32), nil
}

func (w *wow64Walker) head(peb va.Address) (va.Address, va.Address, error) {
	ldr, err := mem.ReadAs[uint32](w.space, peb.Inc(uint64(unsafe.Offsetof(sys.Peb32{}.Ldr))))
	if err != nil {
		return 0, 0, err
	}
	data, err := mem.ReadAs[sys.PebLdrData32](w.space, va.Address(*ldr))
	if err != nil {
		return 0, 0, err
	}
	if data.Initialized == 0 {
		return 0, 0, errs.ErrLoaderNotInitialized
	}
	head := va.Address(*ldr).Inc(uint64(unsafe.Offsetof(sys.PebLdrData32{}.InLoadOrderModuleList)))
	return head, va.Address(data.InLoadOrderModuleList.Flink), nil
}

func (w *wow64Walker) node(link va.Address) (Module, va.Address, error) {
	entry, err := mem.ReadAs[sys.LdrDataTableEntry32](w.space, link)
	if err != nil {
		return Module{}, 0, err
	}
	m := Module{
		BaseAddress: va.Address(entry.DllBase),
		EntryPoint:  va.Address(entry.EntryPoint),
		Size:        entry.SizeOfImage,
	}
	m.Path, err = mem.ReadUTF16(w.space, va.Address(entry.FullDllName.Buffer), uint(entry.FullDllName.Length))
	if err != nil {
		return Module{}, 0, err
	}
	m.Name, err = mem.ReadUTF16(w.space, va.Address(entry.BaseDllName.Buffer), uint(entry.BaseDllName.Length))
	if err != nil {
		return Module{}, 0, err
	}
	return m, va.Address(entry.InLoadOrderLinks.Flink), nil
}
