// Command surveyd runs the survey API, its background worker and schema
// migrations.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
