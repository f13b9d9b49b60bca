// Command solargradectl runs one-off maintenance operations against the
// SolarGrade store without starting the servers.
package main

import (
	"os"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
