// Command sandboxloader loads a policy artifact for one function into
// a running sandboxd (or an in-process registry, for tests) and stamps
// it to a pid, per spec.md §6.3.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/talfig/libcallsandbox/engine"
	"github.com/talfig/libcallsandbox/notifyproto"
	"github.com/talfig/libcallsandbox/policy"
)

// Exit codes per spec.md §6.3.
const (
	exitOK       = 0
	exitArgError = 1
	exitRejected = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	fs := flag.NewFlagSet("sandboxloader", flag.ContinueOnError)
	fs.SetOutput(stderr)

	pid := fs.Uint("p", 0, "pid to load the policy for (required)")
	artifactPath := fs.String("j", "", "path to a policy artifact JSON file (required)")
	funcIndex := fs.Int("f", 0, "index of the function within the artifact to load")
	unique := fs.Bool("unique", false, "match on unique ids instead of dummy ids")
	socketPath := fs.String("socket", notifyproto.DefaultControlSocketPath, "sandboxd control socket path")
	inproc := fs.Bool("inproc", false, "load directly into an in-process registry instead of dialing sandboxd (used by tests)")

	if err := fs.Parse(args); err != nil {
		return exitArgError
	}
	if *pid == 0 || *artifactPath == "" {
		fmt.Fprintln(stderr, "sandboxloader: -p and -j are required")
		return exitArgError
	}

	data, err := os.ReadFile(*artifactPath)
	if err != nil {
		fmt.Fprintf(stderr, "sandboxloader: reading artifact: %v\n", err)
		return exitArgError
	}
	art, err := policy.ParseArtifact(data)
	if err != nil {
		fmt.Fprintf(stderr, "sandboxloader: parsing artifact: %v\n", err)
		return exitArgError
	}

	mode := policy.ModeDummy
	if *unique {
		mode = policy.ModeUnique
	}
	var loader policy.Loader
	blob, err := loader.Load(art, *funcIndex, mode, uint32(*pid))
	if err != nil {
		fmt.Fprintf(stderr, "sandboxloader: building blob: %v\n", err)
		return exitArgError
	}
	encoded := blob.Encode()

	if *inproc {
		reg := engine.NewRegistry()
		if err := reg.Load(context.Background(), uint32(*pid), encoded); err != nil {
			fmt.Fprintf(stderr, "sandboxloader: in-process load rejected: %v\n", err)
			return exitRejected
		}
	} else {
		client := notifyproto.NewControlClient(*socketPath)
		if err := client.LoadPolicy(uint32(*pid), encoded); err != nil {
			fmt.Fprintf(stderr, "sandboxloader: sandboxd rejected policy: %v\n", err)
			return exitRejected
		}
	}

	fmt.Fprintf(stdout, "sandboxloader: loaded %s nodes, %s edges for pid %d\n",
		humanize.Comma(int64(blob.NumNodes)), humanize.Comma(int64(blob.NumEdges)), *pid)
	return exitOK
}
