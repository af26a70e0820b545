package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Mindburn-Labs/mend/pkg/ledger"
	"github.com/Mindburn-Labs/mend/pkg/workspace"
)

// verifyCmd implements `mend verify`: it walks the ledger hash chain
// and re-derives every entry signature, then checks any recorded
// attestations.
//
// Exit codes: 0 = chain intact, 1 = tampering detected or runtime error.
func verifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var state string
	cmd.StringVar(&state, "state", "", "state root (default $MEND_STATE_DIR or .mend)")
	if err := cmd.Parse(args); err != nil {
		return exitError
	}

	layout, err := workspace.NewLayout(stateDir(state))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	led := ledger.NewStore(layout.LedgerDir())
	ok, reason := led.Verify()
	if !ok {
		_, _ = fmt.Fprintf(stderr, "ledger verification FAILED: %s\n", reason)
		return exitError
	}
	_, _ = fmt.Fprintln(stdout, "ledger chain: OK")

	bad := 0
	attDir := filepath.Join(layout.AttestationsDir(), "improvement")
	files, err := os.ReadDir(attDir)
	if err != nil && !os.IsNotExist(err) {
		_, _ = fmt.Fprintf(stderr, "Error: read attestations: %v\n", err)
		return exitError
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(attDir, f.Name()))
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: read %s: %v\n", f.Name(), err)
			return exitError
		}
		var att ledger.Attestation
		if err := json.Unmarshal(raw, &att); err != nil {
			_, _ = fmt.Fprintf(stderr, "attestation %s: unparseable: %v\n", f.Name(), err)
			bad++
			continue
		}
		valid, err := ledger.VerifyAttestation(&att)
		if err != nil || !valid {
			_, _ = fmt.Fprintf(stderr, "attestation %s: INVALID\n", f.Name())
			bad++
		}
	}
	if bad > 0 {
		_, _ = fmt.Fprintf(stderr, "%d attestation(s) failed verification\n", bad)
		return exitError
	}
	_, _ = fmt.Fprintf(stdout, "attestations: %d OK\n", len(files))
	return exitOK
}
