package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/itsneelabh/querysynth/schema"
)

var tablesCmd = &cobra.Command{
	Use:   "tables [table...]",
	Short: "List the tables of the data source, or describe the named ones",
	RunE:  runTables,
}

var tablesJSON bool

func init() {
	tablesCmd.Flags().BoolVar(&tablesJSON, "json", false, "print JSON")
}

func runTables(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, cancel := context.WithTimeout(cmd.Context(), rt.cfg.Timeouts.Schema)
	defer cancel()
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		tables, err := rt.inspector.ListTables(ctx, flags.dataSource)
		if err != nil {
			return err
		}
		if tablesJSON {
			return json.NewEncoder(out).Encode(tables)
		}
		for _, t := range tables {
			fmt.Fprintln(out, t)
		}
		return nil
	}

	cols, err := rt.inspector.GetColumns(ctx, flags.dataSource, schema.NormalizeTables(args))
	if err != nil {
		return err
	}
	if tablesJSON {
		return json.NewEncoder(out).Encode(cols)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tCOLUMN\tTYPE\tFLAGS")
	for _, table := range cols.Tables() {
		for _, c := range cols[table] {
			var marks []string
			if c.PrimaryKey {
				marks = append(marks, "pk")
			}
			if c.Nullable {
				marks = append(marks, "null")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", table, c.Name, c.Type, strings.Join(marks, ","))
		}
	}
	return w.Flush()
}
