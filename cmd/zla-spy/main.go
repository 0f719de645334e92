// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command zla-spy spies the content of the zlogan and DMA registers.
package main // import "github.com/go-lpc/zlogan/cmd/zla-spy"

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-lpc/zlogan/zla"
)

func main() {
	log.SetPrefix("zla-spy: ")
	log.SetFlags(0)

	cfgName := flag.String("cfg", "zla.yml", "path to configuration file")
	flag.Parse()

	cfg, err := zla.LoadConfig(*cfgName)
	if err != nil {
		log.Fatalf("could not load configuration: %+v", err)
	}

	dev, err := zla.Open(cfg)
	if err != nil {
		log.Fatalf("could open device: %+v", err)
	}
	defer dev.Close()

	fmt.Printf("------------------------------------------------\n")
	const layout = "2006-01-02 15:04:05 MST"
	fmt.Printf("%v\n", time.Now().Format(layout))

	err = dev.Controller(nil).DumpRegisters(os.Stdout)
	if err != nil {
		log.Fatalf("could not dump registers: %+v", err)
	}
}
