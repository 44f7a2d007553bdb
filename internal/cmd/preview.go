package cmd

import (
	"context"
	"fmt"
	"os"

	"postsync/internal/ingest"

	"github.com/k0kubun/pp"
	"github.com/urfave/cli/v3"
)

// previewCmd is a development aid: it decodes a submission file the way the
// ingestion boundary would and dumps the typed result, without touching any
// backing service.
var previewCmd = &cli.Command{
	Name:      "preview",
	Usage:     "Decode a submission JSON file and print the typed shape",
	ArgsUsage: "FILE",
	Action: func(_ context.Context, c *cli.Command) error {
		if c.Args().Len() != 1 {
			return fmt.Errorf("expected exactly one file argument")
		}

		raw, err := os.ReadFile(c.Args().First())
		if err != nil {
			return err
		}

		submission, err := ingest.DecodeSubmission(raw)
		if err != nil {
			return err
		}

		pp.Println(submission)
		return nil
	},
}
