// Command auth serves member sign-up, login and the access token lifecycle
// for the stay backend. It is configured entirely through the environment.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/core-miniproject/stay/internal/auth/app"
)

func main() {
	showVersion := flag.Bool("version", false, "print the build version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(app.BuildVersion)
		return
	}

	application, err := app.New(app.LoadConfig())
	if err != nil {
		slog.Error("auth service failed to start", "error", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("auth service stopped", "error", err)
		os.Exit(1)
	}
}
