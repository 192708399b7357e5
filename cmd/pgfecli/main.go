// Command pgfecli is a one-shot connect/prepare/bind/execute/print
// driver, adapted from the teacher's cmd/tqdbproxy/main.go: the same
// flag/config/metrics wiring, but driving a single prepared-statement
// round trip against one connection instead of starting two long-lived
// proxy listeners.
package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mevdschee/pgwire/binding"
	"github.com/mevdschee/pgwire/metrics"
	"github.com/mevdschee/pgwire/pgcache"
	"github.com/mevdschee/pgwire/pgconfig"
	"github.com/mevdschee/pgwire/pgconn"
	"github.com/mevdschee/pgwire/protocol"
)

func main() {
	configPath := flag.String("config", "", "Path to connection options file (INI)")
	metricsAddr := flag.String("metrics", ":9090", "Metrics endpoint address")
	query := flag.String("query", "", "SQL text to prepare and execute (required)")
	params := flag.String("params", "", "Comma-separated positional parameter values")
	timeoutMs := flag.Int("timeout-ms", 5000, "Connect/request timeout in milliseconds, -1 for no deadline")
	maxRows := flag.Int("max-rows", 0, "Maximum rows to fetch, 0 for all")
	flag.Parse()

	if *query == "" {
		log.Fatal("pgfecli: -query is required")
	}

	opts, err := pgconfig.Load(*configPath)
	if err != nil {
		log.Fatalf("pgfecli: loading connection options: %v", err)
	}

	metrics.Init()
	go func() {
		http.Handle("/metrics", metrics.Handler())
		log.Printf("pgfecli: metrics endpoint at http://localhost%s/metrics", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
			log.Printf("pgfecli: metrics server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("pgfecli: interrupted, exiting")
		os.Exit(1)
	}()

	cache, err := pgcache.New(4, time.Hour)
	if err != nil {
		log.Fatalf("pgfecli: creating plan cache: %v", err)
	}
	defer cache.Close()

	stmt, err := cache.GetOrParse(*query)
	if err != nil {
		log.Fatalf("pgfecli: parsing query: %v", err)
	}

	conn, err := pgconn.ConnectWithFailover(opts, *timeoutMs)
	if err != nil {
		log.Fatalf("pgfecli: connecting: %v", err)
	}
	defer conn.Disconnect()

	const stmtName = "pgfecli_stmt"
	if err := conn.PrepareStatement(stmtName, stmt); err != nil {
		log.Fatalf("pgfecli: submitting prepare: %v", err)
	}
	if err := conn.WaitResponse(*timeoutMs); err != nil {
		log.Fatalf("pgfecli: waiting for prepare: %v", err)
	}
	if se, ok := conn.ServerErr(); ok {
		log.Fatalf("pgfecli: prepare failed: %s: %s", se.SQLState(), se.Message)
	}

	b := binding.New(stmt)
	if *params != "" {
		for i, v := range strings.Split(*params, ",") {
			if err := b.Set(i, []byte(v)); err != nil {
				log.Fatalf("pgfecli: binding parameter %d: %v", i, err)
			}
		}
	}

	if err := conn.ExecutePrepared("pgfecli_portal", stmtName, b, nil, int32(*maxRows)); err != nil {
		log.Fatalf("pgfecli: submitting execute: %v", err)
	}

	rowCount := 0
	err = conn.ForEach(*timeoutMs, func(row protocol.DataRow) error {
		printRow(row)
		rowCount++
		return nil
	})
	if err != nil {
		log.Fatalf("pgfecli: fetching rows: %v", err)
	}
	if se, ok := conn.ServerErr(); ok {
		log.Fatalf("pgfecli: execute failed: %s: %s", se.SQLState(), se.Message)
	}

	if tag, ok := conn.Completion(); ok {
		log.Printf("pgfecli: %s (%d rows printed)", tag.Tag, rowCount)
	}
}

func printRow(row protocol.DataRow) {
	fields := make([]string, len(row.Columns))
	for i, col := range row.Columns {
		if col.Null {
			fields[i] = "<null>"
			continue
		}
		fields[i] = string(col.Bytes)
	}
	log.Println(strings.Join(fields, " | "))
}
