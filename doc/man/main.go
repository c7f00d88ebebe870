package main

import (
	"log"
	"os"

	"github.com/spf13/cobra/doc"

	"github.com/forestnode-io/upnpstack/pkg/commands/root"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: man <output dir>")
	}
	header := doc.GenManHeader{
		Title:   "UPNPSTACK",
		Section: "1",
		Source:  "https://github.com/forestnode-io/upnpstack",
	}
	if err := doc.GenManTree(root.CobraCommand(), &header, os.Args[1]); err != nil {
		log.Fatal(err)
	}
}
