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

package query

import (
	"testing"

	"github.com/rabbitstack/winspect/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/windows"
)

func TestRetryGrowsToReportedSize(t *testing.T) {
	var attempts int
	buf, err := retry(1, 16, func(b []byte) (uint32, error) {
		attempts++
		if len(b) < 128 {
			return 128, windows.STATUS_INFO_LENGTH_MISMATCH
		}
		return 128, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Len(t, buf, 128)
}

func TestRetryDoublesWithoutReportedSize(t *testing.T) {
	var attempts int
	buf, err := retry(1, 16, func(b []byte) (uint32, error) {
		attempts++
		if len(b) < 64 {
			return 0, windows.STATUS_BUFFER_TOO_SMALL
		}
		return 0, nil
	})
	require.NoError(t, err)
	// 16 -> 32 -> 64
	assert.Equal(t, 3, attempts)
	assert.Len(t, buf, 64)
}

func TestRetryRepeatsOnConcurrentGrowth(t *testing.T) {
	// the kernel-reported size is only valid for the instant snapshot,
	// so the loop must tolerate consecutive mismatches with increasing
	// required sizes
	sizes := []uint32{256, 512, 1024}
	var attempts int
	buf, err := retry(1, 16, func(b []byte) (uint32, error) {
		if attempts < len(sizes) {
			needed := sizes[attempts]
			attempts++
			return needed, windows.STATUS_INFO_LENGTH_MISMATCH
		}
		return 0, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Len(t, buf, 1024)
}

func TestRetryAbortsOnOtherErrors(t *testing.T) {
	_, err := retry(11, 16, func(b []byte) (uint32, error) {
		return 0, windows.STATUS_ACCESS_DENIED
	})
	require.Error(t, err)
	require.True(t, errs.IsSizeNegotiation(err))
	var e errs.ErrSizeNegotiation
	require.ErrorAs(t, err, &e)
	assert.Equal(t, int32(11), e.Class)
	assert.Equal(t, windows.STATUS_ACCESS_DENIED, e.Err)
}

func TestRetryFirstAttemptSucceeds(t *testing.T) {
	var attempts int
	buf, err := retry(1, 64, func(b []byte) (uint32, error) {
		attempts++
		return 64, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Len(t, buf, 64)
}
