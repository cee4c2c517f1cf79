// Command nodectl is a CLI client for the node surface (§6 CLI
// surface): read/list/write/delete against a remote node-server, or run
// one embedded for local use.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Exit codes, fixed by the protocol: 0 success, 2 not-found, 3
// validation, 4 no-schema, 5 backend.
const (
	exitOK         = 0
	exitNotFound   = 2
	exitValidation = 3
	exitNoSchema   = 4
	exitBackend    = 5
)

// Run is the CLI entrypoint, separated from main for testability.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stdout)
		return exitValidation
	}

	ctx := context.Background()
	switch args[1] {
	case "read":
		return cmdRead(ctx, args[2:], stdout, stderr)
	case "list":
		return cmdList(ctx, args[2:], stdout, stderr)
	case "write":
		return cmdWrite(ctx, args[2:], stdout, stderr)
	case "delete":
		return cmdDelete(ctx, args[2:], stdout, stderr)
	case "node":
		return cmdNode(ctx, args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[1])
		printUsage(stderr)
		return exitValidation
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: nodectl <command> [arguments]")
	fmt.Fprintln(w, "\nCommands:")
	fmt.Fprintln(w, "  read <uri>           Read a record")
	fmt.Fprintln(w, "  list <uri>           List records under a URI")
	fmt.Fprintln(w, "  write <uri> <value>  Write a JSON value")
	fmt.Fprintln(w, "  delete <uri>         Delete a record")
	fmt.Fprintln(w, "  node                 Run an embedded server")
	fmt.Fprintln(w, "\nEnvironment:")
	fmt.Fprintln(w, "  NODE_URL   base URL of a running node-server (default http://localhost:8080)")
}
