package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/humidex-sensor/internal/entity"
	"github.com/sweeney/humidex-sensor/internal/registry"
)

func addRequestFlags(cmd *cobra.Command, req *registry.Request) {
	cmd.Flags().StringVarP(&req.Name, "name", "n", "", "display name (default \""+registry.DefaultName+"\")")
	cmd.Flags().StringVarP(&req.Temperature, "temperature", "t", "", "temperature entity id, e.g. sensor.kitchen_temperature")
	cmd.Flags().StringVarP(&req.Humidity, "humidity", "u", "", "humidity entity id, e.g. sensor.kitchen_humidity")
	cmd.Flags().StringVarP(&req.Icon, "icon", "i", "", "icon of the comfort sensor (default \""+registry.DefaultIcon+"\")")
}

func newRegisterCmd(opts *globalOptions) *cobra.Command {
	var req registry.Request

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a temperature and humidity pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withManager(cmd, func(ctx context.Context, m *registry.Manager) error {
				e, err := m.Register(ctx, req)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), e.ID)
				return nil
			})
		},
	}
	addRequestFlags(cmd, &req)
	return cmd
}

func newReconfigureCmd(opts *globalOptions) *cobra.Command {
	var name, icon string

	cmd := &cobra.Command{
		Use:   "reconfigure <id>",
		Short: "Change the name or icon of a registration",
		Long: "Change the name or icon of a registration. Flags that are not given keep their current value.\n" +
			"The temperature and humidity pair cannot be changed; remove and register it instead.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withManager(cmd, func(ctx context.Context, m *registry.Manager) error {
				current, err := m.Get(ctx, args[0])
				if err != nil {
					return err
				}
				req := registry.Request{
					Name:        current.Title,
					Temperature: current.Temperature,
					Humidity:    current.Humidity,
					Icon:        current.Icon,
				}
				if cmd.Flags().Changed("name") {
					req.Name = name
				}
				if cmd.Flags().Changed("icon") {
					req.Icon = icon
				}

				e, err := m.Reconfigure(ctx, args[0], req)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), e.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "display name")
	cmd.Flags().StringVarP(&icon, "icon", "i", "", "icon of the comfort sensor")
	return cmd
}

// listedEntry is the JSON shape printed by list --json.
type listedEntry struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Temperature string    `json:"temperature"`
	Humidity    string    `json:"humidity"`
	Icon        string    `json:"icon"`
	Sensors     []string  `json:"sensors"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newListCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withManager(cmd, func(ctx context.Context, m *registry.Manager) error {
				entries, err := m.List(ctx)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if asJSON {
					listed := make([]listedEntry, 0, len(entries))
					for _, e := range entries {
						listed = append(listed, listedEntry{
							ID:          e.ID,
							Title:       e.Title,
							Temperature: e.Temperature,
							Humidity:    e.Humidity,
							Icon:        e.Icon,
							Sensors:     []string{entity.BaseName(e.Title), entity.BaseName(e.Title) + " Comfortable"},
							CreatedAt:   e.CreatedAt,
							UpdatedAt:   e.UpdatedAt,
						})
					}
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(listed)
				}

				if len(entries) == 0 {
					fmt.Fprintln(out, "no registrations")
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tTEMPERATURE\tHUMIDITY\tICON")
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.ID, entity.BaseName(e.Title), e.Temperature, e.Humidity, e.Icon)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newRemoveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a registration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withManager(cmd, func(ctx context.Context, m *registry.Manager) error {
				return m.Remove(ctx, args[0])
			})
		},
	}
}
