// Command fledge is the CLI entrypoint: a thin dispatcher around the
// static-generation core. All real work happens in internal/.
package main

import (
	"os"

	"github.com/fledgehq/fledge/internal/bootchild"
)

func main() {
	// Must run before any flag parsing: a child process re-exec'd by
	// the supervisor carries FLEDGE_BOOTCHILD and never reaches the
	// normal command tree.
	if bootchild.RunIfBootChild() {
		return
	}
	os.Exit(Execute())
}
