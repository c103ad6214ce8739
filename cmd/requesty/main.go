// Command requesty talks to the Requesty router from the terminal.
//
//	requesty chat "Explain SSE in one line"
//	requesty tools --stream "What is (17 + 25) * 3?"
//	requesty extract "Ada Lovelace, ada@example.com, Analytical Engines Ltd"
//	requesty batch --concurrency 4 "Capital of France?" "Capital of Peru?"
//
// Credentials come from REQUESTY_API_KEY (a .env file in the working directory is loaded first).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(newRouterLLM).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
