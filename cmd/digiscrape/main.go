package main

import (
	"context"

	"digiscrape/cmd/digiscrape/commands"
	"digiscrape/pkg/serviceutil"
)

func main() {
	ctx, stop := serviceutil.SignalContext(context.Background())
	err := commands.ExecuteContext(ctx)
	stop()
	if err != nil {
		serviceutil.Fatal("digiscrape", err)
	}
}
