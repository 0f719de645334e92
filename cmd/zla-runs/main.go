// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command zla-runs displays the last run recorded in a zlogan run catalog.
package main // import "github.com/go-lpc/zlogan/cmd/zla-runs"

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/go-lpc/zlogan/runlog"
	"github.com/go-lpc/zlogan/zla"
)

func main() {
	log.SetPrefix("zla-runs: ")
	log.SetFlags(0)

	var (
		cfgName = flag.String("cfg", "zla.yml", "path to configuration file")
		dsn     = flag.String("db", "", "run catalog DSN (default: from configuration file)")
	)

	flag.Parse()

	if *dsn == "" {
		cfg, err := zla.LoadConfig(*cfgName)
		if err != nil {
			log.Fatalf("could not load configuration: %+v", err)
		}
		*dsn = cfg.DB
	}
	if *dsn == "" {
		log.Fatalf("no run catalog configured")
	}

	db, err := runlog.Open(*dsn)
	if err != nil {
		log.Fatalf("could not open run catalog: %+v", err)
	}
	defer db.Close()

	err = doQuery(os.Stdout, db)
	if err != nil {
		log.Fatalf("could not do query: %+v", err)
	}
}

type catalog interface {
	Last(ctx context.Context) (runlog.Run, error)
}

func doQuery(w io.Writer, db catalog) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	run, err := db.Last(ctx)
	if err != nil {
		return fmt.Errorf("could not get last run: %w", err)
	}

	const layout = "2006-01-02 15:04:05 MST"
	fmt.Fprintf(w, "start:     %s\n", run.Start.Format(layout))
	fmt.Fprintf(w, "stop:      %s (%v)\n", run.Stop.Format(layout), run.Stop.Sub(run.Start))
	fmt.Fprintf(w, "output:    %s\n", run.Output)
	fmt.Fprintf(w, "state:     %s\n", run.State)
	fmt.Fprintf(w, "words:     %d/%d\n", run.Delivered, run.Requested)
	fmt.Fprintf(w, "overrun:   %v\n", run.Overrun)

	return nil
}
