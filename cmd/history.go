package cmd

import (
	"context"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"grimm.is/sieve/internal/brand"
	"grimm.is/sieve/internal/history"
)

// RunHistory lists the most recent lifecycle operations. program filters by
// program name when set.
func RunHistory(program string, limit int) error {
	if _, err := os.Stat(brand.HistoryPath()); os.IsNotExist(err) {
		Printer.Println("No history.")
		return nil
	}
	store, err := history.Open(history.Options{Path: brand.HistoryPath()})
	if err != nil {
		return err
	}
	defer store.Close()

	events, err := store.Recent(context.Background(), program, limit)
	if err != nil {
		return err
	}
	writeHistory(os.Stdout, events)
	return nil
}

func writeHistory(w io.Writer, events []history.Event) {
	if len(events) == 0 {
		Printer.Fprintln(w, "No history.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	Printer.Fprintln(tw, "TIME\tACTION\tPROGRAM\tTARGET\tINTERFACE\tID\tRESULT")
	for _, e := range events {
		result := "ok"
		if !e.Succeeded() {
			result = e.Error
		}
		id := "-"
		if e.ProgramID != 0 {
			id = strconv.Itoa(e.ProgramID)
		}
		iface := e.Interface
		if iface == "" {
			iface = "-"
		}
		Printer.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Time.Local().Format(time.DateTime), e.Action, e.Program, e.Target, iface, id, result)
	}
	tw.Flush()
}
