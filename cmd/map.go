package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"grimm.is/sieve/internal/deploy"
	"grimm.is/sieve/internal/mapdata"
)

// RunMap prints the records of one map of the policy's program.
func RunMap(configFile, mapName string, asJSON bool) error {
	if mapName == "" {
		return fmt.Errorf("usage: sieve map [-c policy] [--json] <whitelist|blacklist|graylist>")
	}
	p, err := loadPolicy(configFile)
	if err != nil {
		return err
	}
	env, err := newRunEnv(false, deploy.Options{})
	if err != nil {
		return err
	}
	defer env.Close()

	records, err := env.orch.GetMapData(context.Background(), p, mapName)
	if err != nil {
		return err
	}
	if asJSON {
		return writeRecordsJSON(os.Stdout, records)
	}
	writeRecords(os.Stdout, records)
	return nil
}

func writeRecordsJSON(w io.Writer, records []mapdata.Record) error {
	if records == nil {
		records = []mapdata.Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func writeRecords(w io.Writer, records []mapdata.Record) {
	if len(records) == 0 {
		Printer.Fprintln(w, "No entries.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	Printer.Fprintln(tw, "IP\tRX PACKETS\tFAST PACKETS\tLAST ACCESS (ns)")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", r.IP, r.RxPackets, r.FastPackets, r.LastAccessNs)
	}
	tw.Flush()
}
