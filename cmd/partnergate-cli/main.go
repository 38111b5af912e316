package main

import (
	"os"

	"github.com/davidahmann/partnergate/internal/cli"
)

func main() {
	exitFn(cli.Execute())
}

var exitFn = os.Exit
