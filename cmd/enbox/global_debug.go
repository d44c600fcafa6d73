//go:build debug

package main

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/enbox/enbox/internal/errors"
	"github.com/enbox/enbox/internal/repository"
)

type profileOptions struct {
	listen    string
	memPath   string
	cpuPath   string
	tracePath string
	blockPath string
	insecure  bool
}

var profileOpts profileOptions

type fakeTestingTB struct{}

func (fakeTestingTB) Logf(msg string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, msg, args...)
}

func registerProfiling(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&profileOpts.listen, "listen-profile", "", "listen on this `address:port` for memory profiling")
	f.StringVar(&profileOpts.memPath, "mem-profile", "", "write memory profile to `dir`")
	f.StringVar(&profileOpts.cpuPath, "cpu-profile", "", "write cpu profile to `dir`")
	f.StringVar(&profileOpts.tracePath, "trace-profile", "", "write trace to `dir`")
	f.StringVar(&profileOpts.blockPath, "block-profile", "", "write block profile to `dir`")
	f.BoolVar(&profileOpts.insecure, "insecure-kdf", false, "use insecure KDF settings")

	origPreRun := cmd.PersistentPreRunE
	cmd.PersistentPreRunE = func(c *cobra.Command, args []string) error {
		if err := origPreRun(c, args); err != nil {
			return err
		}
		return runDebug()
	}
}

func runDebug() error {
	if profileOpts.listen != "" {
		fmt.Fprintf(os.Stderr, "running profile HTTP server on %v\n", profileOpts.listen)
		go func() {
			err := http.ListenAndServe(profileOpts.listen, nil)
			if err != nil {
				fmt.Fprintf(os.Stderr, "profile HTTP server listen failed: %v\n", err)
			}
		}()
	}

	profilesEnabled := 0
	for _, p := range []string{profileOpts.memPath, profileOpts.cpuPath, profileOpts.tracePath, profileOpts.blockPath} {
		if p != "" {
			profilesEnabled++
		}
	}
	if profilesEnabled > 1 {
		return errors.Fatal("only one profile (memory, CPU, trace, or block) may be activated at the same time")
	}

	var prof interface {
		Stop()
	}

	switch {
	case profileOpts.memPath != "":
		prof = profile.Start(profile.Quiet, profile.NoShutdownHook, profile.MemProfile, profile.ProfilePath(profileOpts.memPath))
	case profileOpts.cpuPath != "":
		prof = profile.Start(profile.Quiet, profile.NoShutdownHook, profile.CPUProfile, profile.ProfilePath(profileOpts.cpuPath))
	case profileOpts.tracePath != "":
		prof = profile.Start(profile.Quiet, profile.NoShutdownHook, profile.TraceProfile, profile.ProfilePath(profileOpts.tracePath))
	case profileOpts.blockPath != "":
		prof = profile.Start(profile.Quiet, profile.NoShutdownHook, profile.BlockProfile, profile.ProfilePath(profileOpts.blockPath))
	}

	if prof != nil {
		AddCleanupHandler(func() error {
			prof.Stop()
			return nil
		})
	}

	if profileOpts.insecure {
		repository.TestUseLowSecurityKDFParameters(fakeTestingTB{})
	}

	return nil
}
