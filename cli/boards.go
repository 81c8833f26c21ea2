// ABOUTME: Board management CLI commands
// ABOUTME: Human-friendly commands for listing, inspecting and deleting boards
package cli

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/harperreed/mural/db"
)

// ListBoardsCommand lists locally stored boards.
func ListBoardsCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("list-boards", flag.ExitOnError)
	limit := fs.Int("limit", 50, "Max results")
	_ = fs.Parse(args)

	boards, err := db.ListBoards(database, *limit)
	if err != nil {
		return fmt.Errorf("failed to list boards: %w", err)
	}

	if len(boards) == 0 {
		fmt.Println("No boards found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tOBJECTS\tUPDATED")
	for _, b := range boards {
		name := b.Name
		if name == "" {
			name = "(untitled)"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", b.ID, name, b.ObjectCount, b.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

// ShowBoardCommand prints a board's stored snapshot details.
func ShowBoardCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("show-board", flag.ExitOnError)
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("board ID is required")
	}
	id := fs.Arg(0)

	doc, err := db.GetBoard(database, id)
	if err != nil {
		return fmt.Errorf("failed to load board: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("board not found: %s", id)
	}

	fmt.Printf("Board: %s\n", doc.BoardID)
	if doc.Name != "" {
		fmt.Printf("Name: %s\n", doc.Name)
	}
	if doc.Description != "" {
		fmt.Printf("Description: %s\n", doc.Description)
	}
	fmt.Printf("Objects: %d\n", len(doc.Objects))
	fmt.Printf("Viewport: zoom %.2f at (%.1f, %.1f)\n", doc.Viewport.Zoom, doc.Viewport.OffsetX, doc.Viewport.OffsetY)

	for _, obj := range doc.Objects {
		fmt.Printf("  %s  %-10s  z=%d  (%.1f, %.1f) %gx%g\n",
			obj.ID, obj.SourceType, obj.ZIndex, obj.X, obj.Y, obj.Width, obj.Height)
	}
	return nil
}

// DeleteBoardCommand removes a board from local storage.
func DeleteBoardCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("delete-board", flag.ExitOnError)
	force := fs.Bool("force", false, "Skip confirmation")
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("board ID is required")
	}
	id := fs.Arg(0)

	if !*force {
		fmt.Printf("Delete board %s? [y/N] ", id)
		var answer string
		_, _ = fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			fmt.Println("Aborted")
			return nil
		}
	}

	if err := db.DeleteBoard(database, id); err != nil {
		return err
	}

	fmt.Printf("✓ Board deleted: %s\n", id)
	return nil
}
