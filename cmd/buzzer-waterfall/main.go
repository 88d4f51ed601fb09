// Command buzzer-waterfall analyses a waterfall JSON export offline.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/MrWong99/buzzer/internal/waterfall"
)

func main() {
	os.Exit(run())
}

func run() int {
	freqMin := flag.Float64("freq-min", 0, "lower bound of the analysed band in Hz (0 = no bound)")
	freqMax := flag.Float64("freq-max", 0, "upper bound of the analysed band in Hz (0 = no bound)")
	timeStart := flag.Float64("time-start", 0, "first second to analyse, relative to the first sample")
	timeEnd := flag.Float64("time-end", 0, "last second to analyse (0 = until the end)")
	target := flag.Float64("target-freq", 0, "report the time series of the bin closest to this frequency in Hz")
	summary := flag.Bool("export-summary", false, "write waterfall_analysis_<timestamp>.txt")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <waterfall.json>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if flag.NArg() != 1 {
		flag.Usage()
		return 2
	}
	path := flag.Arg(0)

	d, err := waterfall.Load(path)
	if err != nil {
		slog.Error("load failed", "file", path, "err", err)
		return 1
	}
	slog.Info("waterfall loaded", "file", path, "samples", len(d.Times), "bins", len(d.Frequencies))

	if *freqMin > 0 || *freqMax > 0 {
		hi := *freqMax
		if hi <= 0 {
			hi = d.Frequencies[len(d.Frequencies)-1]
		}
		if d, err = d.FilterFrequency(*freqMin, hi); err != nil {
			slog.Error("frequency filter", "err", err)
			return 1
		}
	}
	if *timeStart > 0 || *timeEnd > 0 {
		end := *timeEnd
		if end <= 0 {
			end = d.Times[len(d.Times)-1]
		}
		if d, err = d.FilterTime(*timeStart, end); err != nil {
			slog.Error("time filter", "err", err)
			return 1
		}
	}

	fmt.Print(d.Analysis(*target))

	if *summary {
		now := time.Now()
		name := fmt.Sprintf("waterfall_analysis_%s.txt", now.Format("20060102_150405"))
		f, err := os.Create(name)
		if err != nil {
			slog.Error("create summary", "err", err)
			return 1
		}
		werr := d.WriteSummary(f, path, now)
		if cerr := f.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			slog.Error("write summary", "err", werr)
			return 1
		}
		slog.Info("summary written", "file", name)
	}
	return 0
}
