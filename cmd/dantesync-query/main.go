// dantesync-query asks one or more sync daemons for their clock readings
// over the DSYN/DSYR protocol and renders a comparison table. Querying every
// host on a Dante network from one machine makes divergent clocks obvious.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	flag "github.com/spf13/pflag"

	"github.com/dantelabs/dantesync/internal/timequery"
)

func main() {
	timeoutFlag := flag.Duration("timeout", 2*time.Second, "per-host query timeout")
	portFlag := flag.Uint16("port", timequery.DefaultPort, "time query port for hosts given without one")
	flag.Parse()

	hosts := flag.Args()
	if len(hosts) == 0 {
		fmt.Fprintln(os.Stderr, "usage: dantesync-query [flags] host [host...]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetHeader([]string{
		"Host", "Mode", "Locked", "Grandmaster",
		"System Time (UTC)", "Drift\n(ppm)", "Freq Adj\n(ppm)", "PTP Offset\n(µs)",
	})

	failed := 0
	for _, host := range hosts {
		addr := host
		if !strings.Contains(host, ":") {
			addr = fmt.Sprintf("%s:%d", host, *portFlag)
		}

		ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
		resp, err := timequery.Query(ctx, addr)
		cancel()
		if err != nil {
			failed++
			table.Append([]string{host, "-", "-", "-", fmt.Sprintf("error: %v", err), "-", "-", "-"})
			continue
		}

		table.Append([]string{
			host,
			resp.Mode.String(),
			fmt.Sprintf("%t", resp.Locked),
			resp.Grandmaster.String(),
			time.Unix(0, int64(resp.SystemTimeNs)).UTC().Format("2006-01-02T15:04:05.000000Z"),
			fmt.Sprintf("%.3f", float64(resp.DriftRateMilliPPM)/1000),
			fmt.Sprintf("%.3f", float64(resp.FreqAdjMilliPPM)/1000),
			fmt.Sprintf("%.1f", float64(resp.PTPOffsetNs)/1000),
		})
	}

	table.Render()
	if failed > 0 {
		os.Exit(1)
	}
}
