// privacyctl operates the privacy engine against the configured storage
// without going through the HTTP API. It reads the same environment as the
// server.
//
// Usage:
//
//	# Run every auto-delete retention policy now
//	privacyctl retention sweep
//
//	# Resume an erasure request that failed part way
//	privacyctl erasure resume <request-id>
//
//	# Mint an API token for an HR operator
//	privacyctl token --user hr-1 --role hr
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
