package commands

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/huebridged/huebridged/pkg/client"
)

// formatLightProperties formats light properties in a consistent order for
// parseable output.
func formatLightProperties(l client.Light) string {
	parts := []string{
		fmt.Sprintf("id=%q", l.ID),
		fmt.Sprintf("entity_id=%q", l.EntityID),
		fmt.Sprintf("name=%q", l.Name),
		fmt.Sprintf("kind=%q", l.Kind),
		fmt.Sprintf("enabled=%v", l.Enabled),
		fmt.Sprintf("reachable=%v", l.Reachable),
		fmt.Sprintf("on=%v", l.On),
		fmt.Sprintf("brightness=%d", l.Brightness),
	}
	if l.ColorMode != "" {
		parts = append(parts, fmt.Sprintf("color_mode=%q", l.ColorMode))
	}
	if l.ColorTemp != 0 {
		parts = append(parts, fmt.Sprintf("ct=%d", l.ColorTemp))
	}
	return strings.Join(parts, " ")
}

func renderLightTable(l client.Light) {
	table := pterm.TableData{
		[]string{pterm.Bold.Sprint("ID"), pterm.Bold.Sprint(l.ID)},
		[]string{"Name", l.Name},
		[]string{"Entity", l.EntityID},
		[]string{"Kind", l.Kind},
		[]string{"Enabled", fmt.Sprintf("%v", l.Enabled)},
		[]string{"Reachable", fmt.Sprintf("%v", l.Reachable)},
		[]string{"On", fmt.Sprintf("%v", l.On)},
		[]string{"Brightness", fmt.Sprintf("%d", l.Brightness)},
	}
	if l.ColorMode != "" {
		table = append(table, []string{"Color mode", l.ColorMode})
	}
	if l.ColorTemp != 0 {
		table = append(table, []string{"Color temp", fmt.Sprintf("%d mireds", l.ColorTemp)})
	}
	if l.Manufacturer != "" {
		table = append(table, []string{"Manufacturer", l.Manufacturer})
	}
	if l.Model != "" {
		table = append(table, []string{"Model", l.Model})
	}

	pterm.DefaultTable.WithData(table).Render()
	pterm.Println()
}

// NewLightCommand creates the light command
func NewLightCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "light",
		Short: "Inspect and control lights",
	}

	cmd.AddCommand(
		newLightListCommand(),
		newLightGetCommand(),
		newLightSetCommand(),
	)

	return cmd
}

// newLightListCommand creates the light list command
func newLightListCommand() *cobra.Command {
	var parseable bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered lights",
		RunE: func(cmd *cobra.Command, args []string) error {
			lights, err := clientFrom(cmd).GetLights(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get lights: %w", err)
			}

			if len(lights) == 0 {
				if parseable {
					return nil
				}
				pterm.Info.Println("No lights registered")
				return nil
			}

			ids := make([]string, 0, len(lights))
			for id := range lights {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			for _, id := range ids {
				if parseable {
					fmt.Println(formatLightProperties(lights[id]))
				} else {
					renderLightTable(lights[id])
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&parseable, "parseable", "p", false, "Output in parseable format (key=value)")
	return cmd
}

// newLightGetCommand creates the light get command
func newLightGetCommand() *cobra.Command {
	var parseable bool
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get a light",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			light, err := clientFrom(cmd).GetLight(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get light: %w", err)
			}
			if parseable {
				fmt.Println(formatLightProperties(light))
			} else {
				renderLightTable(light)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&parseable, "parseable", "p", false, "Output in parseable format (key=value)")
	return cmd
}

// newLightSetCommand creates the light set command
func newLightSetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <id> <property>=<value> [...]",
		Short: "Set light state",
		Long: `Set one or more state properties on a light.

Properties:
  on=true|false        power state
  brightness=1-255     brightness level
  ct=<mireds>          color temperature
  hue=0-65535          hue (requires sat)
  sat=0-255            saturation (requires hue)
  effect=<name>        light effect
  flash=select|lselect flash request
  transition=<ms>      transition time in milliseconds`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			update, err := parseStateArgs(args[1:])
			if err != nil {
				return err
			}
			if err := clientFrom(cmd).SetLightState(cmd.Context(), args[0], update); err != nil {
				return fmt.Errorf("failed to set light state: %w", err)
			}
			pterm.Success.Println("State updated")
			return nil
		},
	}
	return cmd
}

func parseStateArgs(args []string) (client.StateUpdate, error) {
	var update client.StateUpdate
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return update, fmt.Errorf("invalid property %q, expected key=value", arg)
		}
		switch key {
		case "on":
			v, err := strconv.ParseBool(value)
			if err != nil {
				return update, fmt.Errorf("invalid on value %q", value)
			}
			update.On = &v
		case "brightness":
			v, err := strconv.Atoi(value)
			if err != nil {
				return update, fmt.Errorf("invalid brightness value %q", value)
			}
			update.Brightness = &v
		case "ct":
			v, err := strconv.Atoi(value)
			if err != nil {
				return update, fmt.Errorf("invalid ct value %q", value)
			}
			update.ColorTemp = &v
		case "hue":
			v, err := strconv.Atoi(value)
			if err != nil {
				return update, fmt.Errorf("invalid hue value %q", value)
			}
			update.Hue = &v
		case "sat":
			v, err := strconv.Atoi(value)
			if err != nil {
				return update, fmt.Errorf("invalid sat value %q", value)
			}
			update.Saturation = &v
		case "effect":
			v := value
			update.Effect = &v
		case "flash":
			if value != "select" && value != "lselect" {
				return update, fmt.Errorf("invalid flash value %q, expected select or lselect", value)
			}
			v := value
			update.Flash = &v
		case "transition":
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return update, fmt.Errorf("invalid transition value %q", value)
			}
			update.TransitionMS = &v
		default:
			return update, fmt.Errorf("unknown property %q", key)
		}
	}
	return update, nil
}
