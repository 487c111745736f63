package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/stackform-io/stackform/internal/cli"

	_ "github.com/stackform-io/stackform/providers/aws"
	_ "github.com/stackform-io/stackform/providers/docker"
	_ "github.com/stackform-io/stackform/providers/null"
)

func main() {
	err := cli.Execute()
	if err == nil {
		os.Exit(cli.ExitOK)
	}

	var exitErr *cli.ExitCodeError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintln(os.Stderr, exitErr.Err)
		}
		os.Exit(exitErr.Code)
	}

	fmt.Fprintln(os.Stderr, err)
	os.Exit(cli.ExitError)
}
