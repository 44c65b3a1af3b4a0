/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package report renders a human-readable summary of pipeline results.
package report

import (
	"fmt"
	"io"

	"chainguard.dev/issuedebug/triage"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// Write renders one summary table per result.
func Write(w io.Writer, results ...triage.PipelineResult) error {
	for i, r := range results {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		table := createStandardTable([]string{"Field", "Value"}, w)
		for _, row := range Rows(r) {
			if err := table.Append(row); err != nil {
				return fmt.Errorf("appending row: %w", err)
			}
		}
		if err := table.Render(); err != nil {
			return fmt.Errorf("rendering summary: %w", err)
		}
	}
	return nil
}

// Rows returns the summary of r as field/value pairs.
func Rows(r triage.PipelineResult) [][]string {
	info := r.IssueInfo
	rows := [][]string{
		{"Repository", info.Repo},
		{"Issue", issueLabel(info)},
	}
	if info.URL != "" {
		rows = append(rows, []string{"URL", info.URL})
	}
	if info.State != "" {
		rows = append(rows, []string{"State", info.State})
	}
	rows = append(rows, []string{"Result", resultLabel(r)})

	if o := r.AnalysisResult; o != nil {
		rows = append(rows,
			[]string{"Patch generated", yesNo(o.Patch != "")},
			[]string{"Reproducing test", passFail(&o.PassedReproducingTest)},
			[]string{"Build validation", passFail(o.PassedBuild)},
			[]string{"Existing tests", passFail(o.PassedExistingTest)},
			[]string{"Analysis produced", yesNo(o.IssueResponse != "")},
		)
		branch := "-"
		if o.RemoteBranchName != nil {
			branch = *o.RemoteBranchName
		}
		rows = append(rows, []string{"Remote branch", branch})
	}

	if e := r.Error; e != nil {
		rows = append(rows,
			[]string{"Error kind", string(e.Kind)},
			[]string{"Error", e.Message},
		)
	}
	return rows
}

func issueLabel(info triage.IssueInfo) string {
	if info.Title == "" {
		return fmt.Sprintf("#%d", info.Number)
	}
	return fmt.Sprintf("#%d %s", info.Number, info.Title)
}

func resultLabel(r triage.PipelineResult) string {
	switch {
	case r.Success:
		return "success"
	case r.Error != nil:
		return "failed"
	default:
		return "no validated fix"
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func passFail(b *bool) string {
	switch {
	case b == nil:
		return "not run"
	case *b:
		return "passed"
	default:
		return "failed"
	}
}

// createStandardTable creates a markdown-style table writer shared by all
// summaries.
func createStandardTable(headers []string, w io.Writer) *tablewriter.Table {
	cfg := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			Formatting: tw.CellFormatting{AutoFormat: tw.Off},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		MaxWidth: 100,
		Behavior: tw.Behavior{TrimSpace: tw.Off},
	}
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(cfg),
		tablewriter.WithHeader(headers),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{
				Left:   tw.On,
				Top:    tw.Off,
				Right:  tw.On,
				Bottom: tw.Off,
			},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
}
