// Command docket runs document operations against a configured store.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	ctx := context.Background()
	a := &app{}
	err := newRootCmd(a).ExecuteContext(ctx)
	if cerr := a.teardown(ctx); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "docket:", err)
		os.Exit(1)
	}
}
