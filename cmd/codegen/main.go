// Command codegen is the CLI for the JavaScript code generation chat.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		// failed turns were already shown by the renderer
		if !isRendered(err) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
