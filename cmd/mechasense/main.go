// Mechasense - Motor condition monitoring and fault diagnosis.
// Copyright (c) 2025 mechasense
// Licensed under the Apache License 2.0

package main

import (
	"fmt"
	"os"

	"github.com/mechasense/mechasense/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
