// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"bufio"
	"fmt"
	"io"

	"github.com/go-daq/pixie16/crate"
)

// WriteHistogramCSV writes MCA spectra as CSV, one column per channel.
func WriteHistogramCSV(w io.Writer, hists [][]uint32) error {
	buf := bufio.NewWriter(w)
	fmt.Fprintf(buf, "bin")
	for ch := range hists {
		fmt.Fprintf(buf, ",Chan%d", ch)
	}
	fmt.Fprintf(buf, "\n")
	if len(hists) == 0 {
		return buf.Flush()
	}
	for bin := range hists[0] {
		fmt.Fprintf(buf, "%d", bin)
		for ch := range hists {
			fmt.Fprintf(buf, ",%d", hists[ch][bin])
		}
		fmt.Fprintf(buf, "\n")
	}
	return buf.Flush()
}

// WriteTraceCSV writes ADC traces as CSV, rows indexed by sample.
func WriteTraceCSV(w io.Writer, traces [][]uint32) error {
	return WriteHistogramCSV(w, traces)
}

// WriteBaselineCSV writes baseline captures as CSV. The time column
// carries the channel-0 timestamps, canonical for the whole module.
func WriteBaselineCSV(w io.Writer, ts []float64, baselines [][]float64) error {
	buf := bufio.NewWriter(w)
	fmt.Fprintf(buf, "sample,time")
	for ch := range baselines {
		fmt.Fprintf(buf, ",Chan%d", ch)
	}
	fmt.Fprintf(buf, "\n")
	for i := range ts {
		fmt.Fprintf(buf, "%d,%g", i, ts[i])
		for ch := range baselines {
			fmt.Fprintf(buf, ",%g", baselines[ch][i])
		}
		fmt.Fprintf(buf, "\n")
	}
	return buf.Flush()
}

// WriteStatsCSV writes the per-channel run statistics as CSV.
func WriteStatsCSV(w io.Writer, st crate.RunStats, numChannels int) error {
	buf := bufio.NewWriter(w)
	fmt.Fprintf(buf, "channel,real_time,live_time,input_count_rate,output_count_rate\n")
	for ch := 0; ch < numChannels; ch++ {
		fmt.Fprintf(buf, "%d,%g,%g,%g,%g\n",
			ch, st.RealTime, st.LiveTime[ch],
			st.InputCountRate[ch], st.OutputCountRate[ch],
		)
	}
	return buf.Flush()
}
