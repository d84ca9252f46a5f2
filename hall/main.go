package main

import (
	"os"

	"github.com/unionhall/hall-app/hall/hallcli"
	"github.com/unionhall/hall-app/log"
)

func main() {
	if err := hallcli.GetApp().Run(os.Args); err != nil {
		log.Hall.Fatal(err)
	}
}
