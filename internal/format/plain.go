package format

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/core"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/schema"
)

const detailMarker = "  | "

// PlainRenderer formats catalog and draft records as tab separated lines.
type PlainRenderer struct {
	// Verbose adds the description and resolution of draft rows.
	Verbose bool
}

// NewPlainRenderer returns a default plain-text renderer.
func NewPlainRenderer() *PlainRenderer {
	return &PlainRenderer{}
}

// FormatRow converts a draft row into user-facing lines.
func (p *PlainRenderer) FormatRow(row schema.DemandRow) []string {
	lines := []string{fmt.Sprintf("%s\t%q\t%q\t%s", row.ID, row.FreeText, row.Title, selectionPath(row.Selection))}
	if !p.Verbose {
		return lines
	}
	if row.Description != "" {
		lines = append(lines, markLines(detailMarker, splitLines("description: "+row.Description))...)
	}
	if row.Resolution != "" {
		lines = append(lines, markLines(detailMarker, splitLines("resolution: "+row.Resolution))...)
	}
	return lines
}

// FormatEntity converts a catalog entity into one line.
func (p *PlainRenderer) FormatEntity(entity schema.CatalogEntity) []string {
	parent := string(entity.ParentID)
	if parent == "" {
		parent = "-"
	}
	return []string{fmt.Sprintf("%s\t%s\t%s", entity.ID, entity.Name, parent)}
}

// FormatDemand converts a committed demand into one line.
func (p *PlainRenderer) FormatDemand(demand schema.Demand) []string {
	return []string{fmt.Sprintf("%s\t%s\t%s\t%q\t%s",
		demand.CreatedAt.UTC().Format(time.RFC3339), demand.ID, demand.AuthorID, demand.Title, selectionPath(demand.Selection))}
}

// FormatSyncError renders a classified failure without its transport detail.
func (p *PlainRenderer) FormatSyncError(err *schema.TypedError) []string {
	if err == nil {
		return nil
	}
	return []string{fmt.Sprintf("error\t%s\t%s\t%s\t%s", err.Kind, err.Operation, err.Path, err.UserMessage())}
}

// FormatNotice renders a transient notice.
func (p *PlainRenderer) FormatNotice(notice schema.Notice) []string {
	if notice.Message == "" {
		return nil
	}
	return []string{fmt.Sprintf("notice\t%s\t%s", notice.Kind, notice.Message)}
}

// Snapshot summarizes the observable state of one collection.
func Snapshot[T any](kind schema.EntityKind, state core.State[T]) []string {
	switch {
	case state.Err != nil:
		return []string{fmt.Sprintf("%s\terror\t%s", kind.Collection(), state.Err.UserMessage())}
	case state.Loading:
		return []string{fmt.Sprintf("%s\tloading", kind.Collection())}
	default:
		return []string{fmt.Sprintf("%s\t%d", kind.Collection(), len(state.Data))}
	}
}

// WriteLines writes each line followed by a newline.
func WriteLines(w io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}
	return nil
}

func selectionPath(sel schema.Selection) string {
	part := func(id schema.EntityID) string {
		if id == "" {
			return "-"
		}
		return string(id)
	}
	return part(sel.UnitID) + "/" + part(sel.SectorID) + " " +
		part(sel.CategoryID) + "/" + part(sel.SubcategoryID) + "/" + part(sel.ItemID)
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimRight(text, "\n"), "\n")
}

func markLines(marker string, lines []string) []string {
	if marker == "" || len(lines) == 0 {
		return lines
	}
	marked := make([]string, 0, len(lines))
	for _, line := range lines {
		marked = append(marked, marker+line)
	}
	return marked
}
