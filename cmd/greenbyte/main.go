package main

import (
	"context"
	"os"

	"github.com/joshsymonds/greenbyte/internal/cli"
	"github.com/joshsymonds/greenbyte/internal/runtime"
)

var version = "dev"

func main() {
	if err := cli.NewRootCmd(version).ExecuteContext(context.Background()); err != nil {
		runtime.DefaultLogger().Error("greenbyte failed", "error", err)
		os.Exit(1)
	}
}
