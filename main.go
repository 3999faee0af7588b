package main

import (
	"os"

	"github.com/hsnlab/upsf-scm/cmd"
	"github.com/hsnlab/upsf-scm/internal/buildinfo"
)

// Set via -ldflags "-X main.version=... -X main.commitHash=... -X main.buildDate=...".
var (
	version    = "dev"
	commitHash = "n/a"
	buildDate  = "<unknown>"
)

func main() {
	cmd.Info = buildinfo.BuildInfo{Version: version, CommitHash: commitHash, BuildDate: buildDate}

	if err := cmd.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
