// The main package for the trendcrawler executable.
package main

import (
	"github.com/JakeFAU/video-trend-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
