package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/spf13/cobra"

	"github.com/sweeney/humidex-sensor/internal/entity"
	"github.com/sweeney/humidex-sensor/internal/logic"
)

func newComputeCmd() *cobra.Command {
	var (
		unit   string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "compute <temperature> <humidity>",
		Short: "Compute the humidex of one temperature and humidity pair",
		Example: `  humidex-sensor compute 25 60
  humidex-sensor compute 86 80 --unit °F --json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return compute(cmd.OutOrStdout(), args[0], args[1], unit, asJSON)
		},
	}
	cmd.Flags().StringVar(&unit, "unit", string(logic.UnitCelsius), "temperature unit (°C or °F)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

type computeResult struct {
	Temperature float64  `json:"temperature_c"`
	Humidity    float64  `json:"humidity"`
	Humidex     float64  `json:"humidex"`
	Comfort     string   `json:"comfort"`
	Label       string   `json:"label"`
	DewPoint    *float64 `json:"dewpoint,omitempty"`
}

func compute(w io.Writer, temperature, humidity, unit string, asJSON bool) error {
	engine := logic.NewEngine(logic.UnitCelsius)
	t := logic.NewReading(temperature, unit)
	h := logic.NewReading(humidity, "%")

	state, outcome := engine.Refresh(&t, &h)
	if !state.Available {
		return fmt.Errorf("cannot compute humidex: %s", outcome)
	}

	// Both parse: Refresh succeeded.
	tv, _ := logic.ParseState(temperature)
	tempC, _ := logic.Normalize(tv, unit, engine.FallbackUnit())
	hv, _ := logic.ParseState(humidity)

	res := computeResult{
		Temperature: entity.Round(tempC, 2),
		Humidity:    hv,
		Humidex:     entity.Round(state.Humidex, 2),
		Comfort:     state.Comfort.String(),
		Label:       state.Comfort.Label(),
	}
	if dew := logic.DewPoint(tempC, hv); !math.IsNaN(dew) && !math.IsInf(dew, 0) {
		d := entity.Round(dew, 2)
		res.DewPoint = &d
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintf(w, "humidex:   %.1f °C\n", state.Humidex)
	fmt.Fprintf(w, "comfort:   %s (%s)\n", res.Comfort, res.Label)
	if res.DewPoint != nil {
		fmt.Fprintf(w, "dew point: %.1f °C\n", *res.DewPoint)
	}
	return nil
}
