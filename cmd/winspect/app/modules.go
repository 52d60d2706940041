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
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rabbitstack/winspect/pkg/loader"
	"github.com/rabbitstack/winspect/pkg/native"
	"github.com/rabbitstack/winspect/pkg/proc"
	"github.com/spf13/cobra"
	"golang.org/x/sys/windows"
)

var modulesCmd = &cobra.Command{
	Use:   "modules [pid]",
	Short: "List modules loaded by the process",
	Args:  cobra.ExactArgs(1),
	RunE:  listModules,
}

var modulesSystemCmd = &cobra.Command{
	Use:   "system",
	Short: "List modules loaded in the kernel address space",
	RunE:  listSystemModules,
}

func init() {
	modulesCmd.AddCommand(modulesSystemCmd)
}

// parsePID converts the command line argument to a process identifier.
func parsePID(s string) (uint32, error) {
	pid, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(pid), nil
}

// listModules walks the process loader list and renders the table
// with all loaded modules.
func listModules(cmd *cobra.Command, args []string) error {
	pid, err := parsePID(args[0])
	if err != nil {
		return err
	}
	p, err := proc.Open(pid, windows.PROCESS_QUERY_INFORMATION|windows.PROCESS_VM_READ)
	if err != nil {
		return err
	}
	defer func() {
		_ = p.Close()
	}()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Base Address", "Size", "Name", "Path"})
	t.SetStyle(table.StyleLight)

	modules, err := loader.Modules(p.Handle)
	if err != nil {
		return err
	}
	for _, m := range modules {
		t.AppendRow(table.Row{
			m.BaseAddress.String(),
			humanize.Bytes(uint64(m.Size)),
			m.Name,
			m.Path,
		})
	}
	t.Render()

	return nil
}

// listSystemModules renders a table with modules loaded in the kernel.
func listSystemModules(cmd *cobra.Command, args []string) error {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Image Base", "Size", "Load Order", "Path"})
	t.SetStyle(table.StyleLight)

	_, err := native.EnumSystemModules(func(m native.SystemModule) native.Flow {
		t.AppendRow(table.Row{
			m.ImageBase.String(),
			humanize.Bytes(uint64(m.ImageSize)),
			m.LoadOrderIndex,
			m.Path,
		})
		return native.Continue
	})
	if err != nil {
		return err
	}
	t.Render()

	return nil
}
