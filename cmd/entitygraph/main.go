// Command entitygraph runs entity operations against a configured document
// store.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	a := newApp()
	err := newRootCmd(a).ExecuteContext(context.Background())
	if cerr := a.close(context.Background()); cerr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", cerr)
	}
	if err != nil {
		os.Exit(1)
	}
}
