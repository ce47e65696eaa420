// Command plotcrawl crawls cadastral plot records and map tiles from a
// BhuNaksha service.
package main

import (
	"github.com/JakeFAU/cadastral-crawler/cmd"
)

func main() {
	cmd.Execute()
}
