package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/audiolibrelab/dualcap/internal/audio"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List available capture devices",
	Long: `List the loopback (system playback) and microphone devices the audio
backend can capture from. Device ids can be set in the config file to
pick something other than the system default.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := audio.ListDevices()
		if err != nil {
			return fmt.Errorf("failed to list devices: %w", err)
		}

		if asYAML, _ := cmd.Flags().GetBool("yaml"); asYAML {
			out, err := yaml.Marshal(devices)
			if err != nil {
				return fmt.Errorf("error marshaling devices: %w", err)
			}
			fmt.Print(string(out))
			return nil
		}

		printDevices("Loopback (system audio):", devices.Loopback)
		fmt.Println()
		printDevices("Microphones:", devices.Microphone)
		return nil
	},
}

func init() {
	devicesCmd.Flags().Bool("yaml", false, "print devices as YAML")
}

func printDevices(heading string, devices []audio.Device) {
	fmt.Println(heading)
	if len(devices) == 0 {
		fmt.Println("  (none found)")
		return
	}
	for _, d := range devices {
		marker := " "
		if d.IsDefault {
			marker = "*"
		}
		fmt.Printf("  %s %s  [%x]\n", marker, d.Name, d.ID)
	}
}
