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

package loader

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/rabbitstack/winspect/pkg/errs"
	"github.com/rabbitstack/winspect/pkg/native"
	"github.com/rabbitstack/winspect/pkg/util/va"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/windows"
)

// fakeWalker drives the shared traversal over an in-memory module list.
// The list head lives at address 1 and nodes occupy consecutive addresses.
type fakeWalker struct {
	modules []Module
	cyclic  bool
	pebErr  error
	headErr error
}

const headAddr = va.Address(1)

func (w *fakeWalker) peb() (va.Address, error) {
	if w.pebErr != nil {
		return 0, w.pebErr
	}
	return 0x1000, nil
}

func (w *fakeWalker) head(peb va.Address) (va.Address, va.Address, error) {
	if w.headErr != nil {
		return 0, 0, w.headErr
	}
	if len(w.modules) == 0 {
		return headAddr, headAddr, nil
	}
	return headAddr, headAddr + 1, nil
}

func (w *fakeWalker) node(link va.Address) (Module, va.Address, error) {
	i := int(link - headAddr - 1)
	next := link + 1
	if i == len(w.modules)-1 && !w.cyclic {
		next = headAddr
	}
	return w.modules[i%len(w.modules)], next, nil
}

func testModules() []Module {
	return []Module{
		{BaseAddress: 0x7ff600000000, Size: 0x1000, Name: "winspect.exe"},
		{BaseAddress: 0x7ffc10000000, Size: 0x2000, Name: "ntdll.dll"},
		{BaseAddress: 0x7ffc20000000, Size: 0x3000, Name: "kernel32.dll"},
	}
}

func TestWalkCollectsAllModules(t *testing.T) {
	w := &fakeWalker{modules: testModules()}
	var names []string
	found, err := walk(w, func(m Module) native.Flow {
		names = append(names, m.Name)
		return native.Continue
	})
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, []string{"winspect.exe", "ntdll.dll", "kernel32.dll"}, names)
}

func TestWalkStopsOnBreak(t *testing.T) {
	w := &fakeWalker{modules: testModules()}
	var n int
	found, err := walk(w, func(m Module) native.Flow {
		n++
		if m.Name == "ntdll.dll" {
			return native.Break
		}
		return native.Continue
	})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 2, n)
}

func TestWalkSkipsNullBaseEntries(t *testing.T) {
	mods := testModules()
	mods[1].BaseAddress = 0
	w := &fakeWalker{modules: mods}
	var names []string
	found, err := walk(w, func(m Module) native.Flow {
		names = append(names, m.Name)
		return native.Continue
	})
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, []string{"winspect.exe", "kernel32.dll"}, names)
}

func TestWalkBoundsCyclicList(t *testing.T) {
	// a list that never wraps back to its head must abort instead
	// of spinning forever
	w := &fakeWalker{modules: testModules(), cyclic: true}
	_, err := walk(w, func(m Module) native.Flow {
		return native.Continue
	})
	require.ErrorIs(t, err, errs.ErrTooManyHops)
}

func TestWalkEmptyList(t *testing.T) {
	w := &fakeWalker{}
	var n int
	found, err := walk(w, func(m Module) native.Flow {
		n++
		return native.Continue
	})
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, n)
}

func TestWalkNilCallback(t *testing.T) {
	_, err := walk(&fakeWalker{}, nil)
	require.ErrorIs(t, err, errs.ErrInvalidArg)
}

func TestWalkPropagatesPebErrors(t *testing.T) {
	w := &fakeWalker{pebErr: errors.Wrap(errs.ErrWow64Redirection, "native view")}
	_, err := walk(w, func(m Module) native.Flow {
		return native.Continue
	})
	require.ErrorIs(t, err, errs.ErrWow64Redirection)
}

func TestWalkPropagatesLoaderInitErrors(t *testing.T) {
	w := &fakeWalker{headErr: errs.ErrLoaderNotInitialized, modules: testModules()}
	_, err := walk(w, func(m Module) native.Flow {
		return native.Continue
	})
	require.ErrorIs(t, err, errs.ErrLoaderNotInitialized)
}

func TestModulesCurrentProcess(t *testing.T) {
	mods, err := Modules(windows.CurrentProcess())
	require.NoError(t, err)
	require.NotEmpty(t, mods)

	var ntdll bool
	for _, m := range mods {
		if m.Name == "ntdll.dll" {
			ntdll = true
			assert.False(t, m.BaseAddress.IsZero())
			assert.NotZero(t, m.Size)
		}
	}
	assert.True(t, ntdll)
}
