// Command office-raster converts office documents and slide decks to images.
package main

import (
	"os"

	"github.com/spherical/office-raster/cmd/office-raster/commands"
)

var version = "0.1.0"

func main() {
	commands.Version = version
	os.Exit(commands.Execute())
}
