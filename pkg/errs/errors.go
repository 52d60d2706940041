/*
 * Copyright 2021-present by Nedim Sabic Sabic
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

package errs

import (
	"errors"
	"fmt"

	"github.com/rabbitstack/winspect/pkg/util/ntstatus"
	"golang.org/x/sys/windows"
)

var (
	// ErrInvalidArg signals a missing or empty required argument, such as
	// an absent callback or an empty object directory root. It denotes a
	// programming error rather than a runtime condition.
	ErrInvalidArg = errors.New("invalid or missing argument")
	// ErrNotFound is returned when an enumeration finishes without the
	// predicate ever matching, or when an RVA falls outside all sections.
	// It designates a regular outcome, not an operation failure.
	ErrNotFound = errors.New("not found")
	// ErrAccessDenied is returned when the handle lacks the required access
	// rights on the target process or object.
	ErrAccessDenied = errors.New("access is denied")
	// ErrWow64Redirection is returned when a native-width loader walk is
	// attempted against a target whose address space is only visible through
	// the WOW64 view. Callers should fall back to the WOW64 walk. The error
	// belongs to the access denied class.
	ErrWow64Redirection = fmt.Errorf("native loader view is not accessible for a WOW64 process: %w", ErrAccessDenied)
	// ErrLoaderNotInitialized signals the target process is still starting up
	// and its module list is not complete yet.
	ErrLoaderNotInitialized = errors.New("process loader is not initialized")
	// ErrTooManyHops is returned when the loader list traversal exceeds the
	// maximum number of visited nodes. A list that never returns to its head
	// indicates corrupted or adversarial loader structures.
	ErrTooManyHops = errors.New("too many loader list hops")
	// ErrPartialCopy signals fewer bytes were transferred to/from the target
	// address space than requested.
	ErrPartialCopy = errors.New("partial memory copy")
	// ErrInvalidImageFormat is returned by the image mapper when the mapped
	// file doesn't carry valid DOS/PE signatures.
	ErrInvalidImageFormat = errors.New("invalid image format")
	// ErrRVANotFound is returned when the relative virtual address can't be
	// attributed to any section of the mapped image.
	ErrRVANotFound = errors.New("rva doesn't belong to any section")
)

// ErrSizeNegotiation is returned by the adaptive buffer query protocol when
// the kernel reports a failure other than the size mismatch status on any
// fetch attempt.
type ErrSizeNegotiation struct {
	Class int32
	Err   error
}

// Error returns the error message. Raw kernel status codes are rendered
// through their human-readable counterparts.
func (e ErrSizeNegotiation) Error() string {
	if status, ok := e.Err.(windows.NTStatus); ok {
		return fmt.Sprintf("querying information class %d failed: %s", e.Class, ntstatus.FormatMessage(uint32(status)))
	}
	return fmt.Sprintf("querying information class %d failed: %v", e.Class, e.Err)
}

// Unwrap returns the underlying kernel error.
func (e ErrSizeNegotiation) Unwrap() error { return e.Err }

// IsSizeNegotiation determines if the error is of the ErrSizeNegotiation type.
func IsSizeNegotiation(err error) bool {
	var e ErrSizeNegotiation
	return errors.As(err, &e)
}

// IsNotFound returns true if the error signals the regular nothing-matched outcome.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
