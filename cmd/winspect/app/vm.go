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

package app

import (
	"os"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rabbitstack/winspect/pkg/mem"
	"github.com/rabbitstack/winspect/pkg/proc"
	"github.com/spf13/cobra"
	"golang.org/x/sys/windows"
)

var vmCmd = &cobra.Command{
	Use:   "vm [pid]",
	Short: "Show the virtual address space layout of the process",
	Args:  cobra.ExactArgs(1),
	RunE:  listRegions,
}

// regionType resolves the region backing kind to its mnemonic.
func regionType(r mem.RegionInfo) string {
	switch r.Type {
	case mem.MemImage:
		return "IMG"
	case mem.MemMapped:
		return "MAP"
	case mem.MemPrivate:
		return "PVT"
	default:
		return "-"
	}
}

// listRegions walks all consecutive regions of the target address space
// and renders their metadata.
func listRegions(cmd *cobra.Command, args []string) error {
	pid, err := parsePID(args[0])
	if err != nil {
		return err
	}
	p, err := proc.Open(pid, windows.PROCESS_QUERY_INFORMATION)
	if err != nil {
		return err
	}
	defer func() {
		_ = p.Close()
	}()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Base Address", "Size", "Type", "Protection", "Mapped File"})
	t.SetStyle(table.StyleLight)

	prober := mem.NewRegionProber(p.AddressSpace())
	prober.Walk(0, func(r mem.RegionInfo) bool {
		if r.State == windows.MEM_FREE {
			return true
		}
		var file string
		if r.IsMapped() {
			file = r.GetMappedFile()
		}
		t.AppendRow(table.Row{
			r.BaseAddress.String(),
			humanize.Bytes(r.RegionSize),
			regionType(r),
			r.ProtectMask(),
			file,
		})
		return true
	})
	t.Render()

	return nil
}
