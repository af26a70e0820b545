package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/Mindburn-Labs/mend/pkg/archive"
	"github.com/Mindburn-Labs/mend/pkg/ledger"
	"github.com/Mindburn-Labs/mend/pkg/snapshot"
	"github.com/Mindburn-Labs/mend/pkg/workspace"
)

// exportCmd implements `mend export`: it bundles a run's evidence and
// optionally uploads it to S3-compatible storage.
func exportCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("export", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		state    string
		runID    string
		outDir   string
		bucket   string
		region   string
		endpoint string
		prefix   string
	)
	cmd.StringVar(&state, "state", "", "state root (default $MEND_STATE_DIR or .mend)")
	cmd.StringVar(&runID, "run", "", "run ID to export (REQUIRED)")
	cmd.StringVar(&outDir, "out", "evidence", "local output directory")
	cmd.StringVar(&bucket, "s3-bucket", "", "upload to this S3 bucket after writing locally")
	cmd.StringVar(&region, "s3-region", "us-east-1", "S3 region")
	cmd.StringVar(&endpoint, "s3-endpoint", "", "custom S3 endpoint (MinIO/LocalStack)")
	cmd.StringVar(&prefix, "s3-prefix", "evidence/", "S3 key prefix")

	if err := cmd.Parse(args); err != nil {
		return exitError
	}
	if runID == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --run is required")
		return exitError
	}

	layout, err := workspace.NewLayout(stateDir(state))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	ctx := context.Background()
	var remote archive.Store
	if bucket != "" {
		s3Store, err := archive.NewS3Store(ctx, archive.S3Config{
			Bucket:   bucket,
			Region:   region,
			Endpoint: endpoint,
			Prefix:   prefix,
		})
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitError
		}
		remote = s3Store
	}

	exp := archive.NewExporter(
		ledger.NewStore(layout.LedgerDir()),
		snapshot.NewStore(layout.SnapshotsDir()),
		layout.AttestationsDir(),
		remote,
	)
	path, remoteHash, err := exp.Export(ctx, runID, outDir)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitIOFailure
	}
	_, _ = fmt.Fprintf(stdout, "bundle written: %s\n", path)
	if remoteHash != "" {
		_, _ = fmt.Fprintf(stdout, "uploaded: %s\n", remoteHash)
	}
	return exitOK
}
