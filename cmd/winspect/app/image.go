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
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rabbitstack/winspect/pkg/image"
	"github.com/spf13/cobra"
)

var imageCmd = &cobra.Command{
	Use:   "image [path]",
	Short: "Dissect a portable executable image",
	Args:  cobra.ExactArgs(1),
	RunE:  inspectImage,
}

// inspectImage maps the image, renders the section table and a summary
// of the deep parser attributes.
func inspectImage(cmd *cobra.Command, args []string) error {
	img, err := image.Map(args[0])
	if err != nil {
		return err
	}
	defer func() {
		_ = img.Close()
	}()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Section", "RVA", "Virtual Size", "Raw Offset", "Raw Size"})
	t.SetStyle(table.StyleLight)

	for _, sec := range img.Sections() {
		t.AppendRow(table.Row{
			sec.String(),
			fmt.Sprintf("%#x", sec.VirtualAddress),
			humanize.Bytes(uint64(sec.VirtualSize)),
			fmt.Sprintf("%#x", sec.PointerToRawData),
			humanize.Bytes(uint64(sec.SizeOfRawData)),
		})
	}
	t.Render()

	meta, err := image.Inspect(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout)
	fmt.Fprintln(os.Stdout, " Is 64-bit:", meta.Is64)
	fmt.Fprintln(os.Stdout, " Is DLL:", meta.IsDLL)
	fmt.Fprintln(os.Stdout, " Is driver:", meta.IsDriver)
	fmt.Fprintf(os.Stdout, " Entry point: %#x\n", meta.EntryPoint)
	fmt.Fprintf(os.Stdout, " Image base: %#x\n", meta.ImageBase)
	fmt.Fprintln(os.Stdout, " Imphash:", meta.Imphash)
	fmt.Fprintln(os.Stdout, " Imports:", strings.Join(meta.Imports, ", "))

	return nil
}
