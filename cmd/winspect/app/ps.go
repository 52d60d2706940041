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
	"github.com/rabbitstack/winspect/pkg/native"
	"github.com/spf13/cobra"
)

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "Show info about running processes and their threads",
	RunE:  listProcesses,
}

var psThreadsCmd = &cobra.Command{
	Use:   "threads [pid]",
	Short: "List threads of the given process",
	Args:  cobra.ExactArgs(1),
	RunE:  listThreads,
}

func init() {
	psCmd.AddCommand(psThreadsCmd)
}

// listProcesses renders a table with all running processes.
func listProcesses(cmd *cobra.Command, args []string) error {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"PID", "PPID", "Name", "Session", "Threads", "Handles", "Working Set"})
	t.SetStyle(table.StyleLight)

	_, err := native.EnumProcesses(func(ps *native.ProcessInfo) native.Flow {
		t.AppendRow(table.Row{
			ps.PID,
			ps.PPID,
			ps.Name,
			ps.SessionID,
			ps.NumberOfThreads,
			ps.HandleCount,
			humanize.Bytes(ps.WorkingSetSize),
		})
		return native.Continue
	})
	if err != nil {
		return err
	}
	t.Render()

	return nil
}

// listThreads renders a table with the threads running inside the process.
func listThreads(cmd *cobra.Command, args []string) error {
	pid, err := parsePID(args[0])
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"TID", "Start Address", "TEB", "State", "Priority", "Context Switches"})
	t.SetStyle(table.StyleLight)

	_, err = native.EnumThreads(pid, func(thread native.ThreadInfo) native.Flow {
		t.AppendRow(table.Row{
			thread.TID,
			thread.StartAddress.String(),
			thread.TebBase.String(),
			thread.State,
			thread.Priority,
			thread.ContextSwitches,
		})
		return native.Continue
	})
	if err != nil {
		return err
	}
	t.Render()

	return nil
}
