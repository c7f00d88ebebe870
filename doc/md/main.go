package main

import (
	"log"
	"os"

	"github.com/spf13/cobra/doc"

	"github.com/forestnode-io/upnpstack/pkg/commands/root"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: md <output dir>")
	}
	if err := doc.GenMarkdownTree(root.CobraCommand(), os.Args[1]); err != nil {
		log.Fatal(err)
	}
}
