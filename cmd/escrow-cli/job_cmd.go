package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"escrowd/client"
)

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func newClient(from string) *client.Client {
	return client.New(rpcURL(), from, rpcToken(), slog.Default())
}

func runCreate(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("escrow-cli create", stderr)
	var (
		from       string
		freelancer string
		arbitrator string
		amount     string
		method     string
	)
	fs.StringVar(&from, "from", "", "client bech32 address funding the job")
	fs.StringVar(&freelancer, "freelancer", "", "freelancer bech32 address")
	fs.StringVar(&arbitrator, "arbitrator", "", "arbitrator bech32 address")
	fs.StringVar(&amount, "amount", "", "amount in display units (e.g. 5 or 0.25)")
	fs.StringVar(&method, "method", "", `payment method label ("ETH" or "BLOCKS")`)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		return printCommandError(stderr, "unexpected positional arguments")
	}
	if from == "" {
		return printCommandError(stderr, "--from is required")
	}

	jobID, err := newClient(from).SubmitCreate(freelancer, arbitrator, amount, method)
	if err != nil {
		return printCommandError(stderr, err.Error())
	}
	fmt.Fprintf(stdout, "Job created with id %d\n", jobID)
	return 0
}

func runTransition(name string, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("escrow-cli "+name, stderr)
	var (
		from  string
		idStr string
	)
	fs.StringVar(&from, "from", "", "caller bech32 address")
	fs.StringVar(&idStr, "id", "", "job id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if from == "" {
		return printCommandError(stderr, "--from is required")
	}
	jobID, err := parseJobID(idStr)
	if err != nil {
		return printCommandError(stderr, err.Error())
	}

	c := newClient(from)
	switch name {
	case "lock":
		err = c.SubmitLock(jobID)
	case "release":
		err = c.SubmitRelease(jobID)
	case "cancel":
		err = c.SubmitCancel(jobID)
	}
	if err != nil {
		return printCommandError(stderr, err.Error())
	}
	past := map[string]string{"lock": "locked", "release": "released", "cancel": "cancelled"}
	fmt.Fprintf(stdout, "Job %d %s\n", jobID, past[name])
	return 0
}

func runGet(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("escrow-cli get", stderr)
	var idStr string
	fs.StringVar(&idStr, "id", "", "job id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	jobID, err := parseJobID(idStr)
	if err != nil {
		return printCommandError(stderr, err.Error())
	}
	job, err := newClient("").GetJob(jobID)
	if err != nil {
		return printCommandError(stderr, err.Error())
	}
	return printJSON(stdout, stderr, job)
}

func runApprove(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("escrow-cli approve", stderr)
	var (
		from   string
		amount string
	)
	fs.StringVar(&from, "from", "", "owner bech32 address")
	fs.StringVar(&amount, "amount", "", "approval amount in display units")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if from == "" {
		return printCommandError(stderr, "--from is required")
	}
	if err := newClient(from).ApproveToken(amount); err != nil {
		return printCommandError(stderr, err.Error())
	}
	fmt.Fprintln(stdout, "Approval recorded")
	return 0
}

func runBalance(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("escrow-cli balance", stderr)
	var address string
	fs.StringVar(&address, "address", "", "bech32 address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	balance, err := newClient("").GetBalance(address)
	if err != nil {
		return printCommandError(stderr, err.Error())
	}
	return printJSON(stdout, stderr, balance)
}

func runEvents(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("escrow-cli events", stderr)
	var (
		prefix string
		limit  int
	)
	fs.StringVar(&prefix, "prefix", "", "filter events by type prefix")
	fs.IntVar(&limit, "limit", 0, "maximum number of entries (0 = all)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	entries, err := newClient("").ListEvents(prefix, limit)
	if err != nil {
		return printCommandError(stderr, err.Error())
	}
	return printJSON(stdout, stderr, entries)
}

func parseJobID(value string) (uint64, error) {
	if value == "" {
		return 0, fmt.Errorf("--id is required")
	}
	jobID, err := strconv.ParseUint(value, 10, 64)
	if err != nil || jobID == 0 {
		return 0, fmt.Errorf("--id must be a positive integer")
	}
	return jobID, nil
}

func printJSON(stdout, stderr io.Writer, value interface{}) int {
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return printCommandError(stderr, err.Error())
	}
	fmt.Fprintln(stdout, string(encoded))
	return 0
}
