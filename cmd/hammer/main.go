package main

import (
	"os"

	"github.com/G-Research/mediahammer/cmd/hammer/cmd"
	"github.com/G-Research/mediahammer/internal/common"
)

func main() {
	common.ConfigureCommandLineLogging()
	os.Exit(cmd.Execute())
}
