// Package main is the redirects command line shell. It signs in through the
// identity provider and manages short links on the redirect service.
package main

import (
	"fmt"
	"os"
	"runtime"
)

var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

const appName = "redirects"

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
