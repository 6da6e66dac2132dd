// Command newhosts finds new, lost and changed hosts on a local IPv4
// network.
//
// Build information is set with ldflags on the cli package, for example
// -X github.com/anstrom/newhosts/cmd/cli.version=1.0.0.
package main

import "github.com/anstrom/newhosts/cmd/cli"

func main() {
	cli.Execute()
}
