// Package main resamples a candle CSV to a coarser timeframe, e.g. 5m to
// 15m, producing output compatible with the run_backtest -csv loader.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"marketsim/services/market"
)

func parseCadenceMs(s string) (int64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	mult := int64(60_000)
	switch {
	case strings.HasSuffix(s, "min"):
		s = strings.TrimSuffix(s, "min")
	case strings.HasSuffix(s, "h"):
		s = strings.TrimSuffix(s, "h")
		mult = 3_600_000
	case strings.HasSuffix(s, "m"):
		s = strings.TrimSuffix(s, "m")
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("unsupported cadence %q", s)
	}
	return int64(n) * mult, nil
}

func main() {
	in := flag.String("in", "", "input CSV (timestamp,open,high,low,close,volume)")
	out := flag.String("out", "", "output CSV path")
	src := flag.String("src", "5m", "source cadence (e.g. 5m)")
	dst := flag.String("dst", "15m", "target cadence (e.g. 15m, 1h)")
	flag.Parse()

	if *in == "" || *out == "" {
		log.Fatal("-in and -out are required")
	}
	srcMs, err := parseCadenceMs(*src)
	if err != nil {
		log.Fatal(err)
	}
	dstMs, err := parseCadenceMs(*dst)
	if err != nil {
		log.Fatal(err)
	}

	series, err := market.LoadCSV(*in)
	if err != nil {
		log.Fatalf("load %s: %v", *in, err)
	}

	resampled, err := market.Resample(series, srcMs, dstMs)
	if err != nil {
		log.Fatal(err)
	}

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("create %s: %v", *out, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "timestamp,open,high,low,close,volume")
	for _, c := range resampled {
		fmt.Fprintf(w, "%d,%g,%g,%g,%g,%g\n", c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume)
	}
	if err := w.Flush(); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Resampled %d bars (%s) -> %d bars (%s)\n", len(series), *src, len(resampled), *dst)
}
