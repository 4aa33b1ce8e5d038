// qmagnavctl is the operator CLI for the navigation service: simulate
// a trajectory or ask the filter to estimate a position, without
// standing up the HTTP server.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ruvnet/quantum-magnetic-navigation/internal/fusion"
	"github.com/ruvnet/quantum-magnetic-navigation/internal/mapengine"
	"github.com/ruvnet/quantum-magnetic-navigation/internal/simulate"
)

var (
	steps      int
	outputFile string

	estLat, estLon float64
	doReset        bool
)

func main() {
	root := &cobra.Command{
		Use:   "qmagnavctl",
		Short: "Operate the magnetic-anomaly navigation service from the command line",
	}

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Generate a synthetic trajectory",
		RunE:  runSimulate,
	}
	simulateCmd.Flags().IntVar(&steps, "steps", 10, "number of trajectory samples")
	simulateCmd.Flags().StringVar(&outputFile, "output", "", "write JSON to this file instead of stdout")

	estimateCmd := &cobra.Command{
		Use:   "estimate",
		Short: "Run a single predict+update cycle against a plane test field",
		RunE:  runEstimate,
	}
	estimateCmd.Flags().Float64Var(&estLat, "lat", 0, "true latitude to simulate an observation at")
	estimateCmd.Flags().Float64Var(&estLon, "lon", 0, "true longitude to simulate an observation at")
	estimateCmd.Flags().BoolVar(&doReset, "reset", false, "reset the filter to (lat,lon) before estimating")

	root.AddCommand(simulateCmd, estimateCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if steps <= 0 {
		return fmt.Errorf("--steps must be positive")
	}
	params := simulate.Params{
		StartLat: 0, StartLon: 0,
		EndLat: 1, EndLon: 1,
		SpeedMPS: 10, SampleRateHz: float64(steps) / 10,
		NoiseStdDev: 1, Path: simulate.Straight, Seed: 1,
	}
	field := func(lat, lon float64) float64 { return 1000 + 500*lat + 300*lon }
	samples, err := simulate.Run(params, field)
	if err != nil {
		return err
	}

	type point struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	}
	// Pick steps evenly spaced samples, keeping both endpoints.
	points := make([]point, steps)
	for i := range points {
		idx := 0
		if steps > 1 {
			idx = i * (len(samples) - 1) / (steps - 1)
		}
		points[i] = point{Lat: samples[idx].Lat, Lon: samples[idx].Lon}
	}

	out, err := json.Marshal(points)
	if err != nil {
		return err
	}
	return writeOutput(out)
}

func runEstimate(cmd *cobra.Command, args []string) error {
	h := mapengine.Header{
		NRows: 200, NCols: 200, Lat0: -1, Lon0: -1, DLat: 0.02, DLon: 0.02,
		NodataSentinel: -9999,
	}
	data := make([]float32, 200*200)
	for i := 0; i < 200; i++ {
		for j := 0; j < 200; j++ {
			lat := h.Lat0 + float64(i)*h.DLat
			lon := h.Lon0 + float64(j)*h.DLon
			data[i*200+j] = float32(1000 + 500*lat + 300*lon)
		}
	}
	m, err := mapengine.OpenMemory(h, data, 8)
	if err != nil {
		return err
	}
	defer m.Close()

	cfg := fusion.DefaultConfig()
	ekf, err := fusion.New(cfg, estLat, estLon)
	if err != nil {
		return err
	}
	if doReset {
		if err := ekf.Reset(estLat, estLon); err != nil {
			return err
		}
	}

	trueField := 1000 + 500*estLat + 300*estLon
	if err := ekf.Predict(1); err != nil {
		return err
	}
	st, err := ekf.Update(trueField, m)
	if err != nil {
		return err
	}

	out, err := json.Marshal(map[string]float64{"lat": st.Lat, "lon": st.Lon, "quality": st.Quality})
	if err != nil {
		return err
	}
	return writeOutput(out)
}

func writeOutput(data []byte) error {
	if outputFile == "" {
		fmt.Println(string(data))
		return nil
	}
	return os.WriteFile(outputFile, data, 0644)
}
