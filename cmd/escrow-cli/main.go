package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	rpcURLEnv   = "ESCROWD_RPC_URL"
	rpcTokenEnv = "ESCROWD_RPC_TOKEN"

	defaultRPCURL = "http://127.0.0.1:8645"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}

	switch args[0] {
	case "create":
		return runCreate(args[1:], stdout, stderr)
	case "lock":
		return runTransition("lock", args[1:], stdout, stderr)
	case "release":
		return runTransition("release", args[1:], stdout, stderr)
	case "cancel":
		return runTransition("cancel", args[1:], stdout, stderr)
	case "get":
		return runGet(args[1:], stdout, stderr)
	case "approve":
		return runApprove(args[1:], stdout, stderr)
	case "balance":
		return runBalance(args[1:], stdout, stderr)
	case "events":
		return runEvents(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func usage() string {
	return strings.TrimSpace(`Usage:
  escrow-cli <command> [flags]

Commands:
  create  Create and fund a new escrow job
  lock    Freeze a job against cancellation
  release Pay the escrowed amount to the freelancer
  cancel  Refund the escrowed amount to the client
  get     Fetch job details by id
  approve Pre-approve BLOCKS spending for token-funded jobs
  balance Fetch the balances of an address
  events  List emitted lifecycle events

Environment:
  ESCROWD_RPC_URL    RPC endpoint (default http://127.0.0.1:8645)
  ESCROWD_RPC_TOKEN  Bearer token for mutating calls
`)
}

func rpcURL() string {
	if url := strings.TrimSpace(os.Getenv(rpcURLEnv)); url != "" {
		return url
	}
	return defaultRPCURL
}

func rpcToken() string {
	return strings.TrimSpace(os.Getenv(rpcTokenEnv))
}

func printCommandError(w io.Writer, message string) int {
	fmt.Fprintf(w, "Error: %s\n", message)
	return 1
}
