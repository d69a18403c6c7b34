package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newProfilesCommand(s *settings) *cobra.Command {
	var natives bool

	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List the stream profiles every sensor can open",
		Example: `  sensorctl profiles
  sensorctl profiles --natives -c ./d435i.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfiles(s, natives)
		},
	}
	cmd.Flags().BoolVar(&natives, "natives", false, "Also list the native transport profiles")
	return cmd
}

func runProfiles(s *settings, natives bool) error {
	d, _, err := openDevice(s)
	if err != nil {
		return err
	}
	defer d.Close()

	title := color.New(color.FgCyan, color.Bold)
	faint := color.New(color.Faint)

	fmt.Printf("%s %s\n", title.Sprint(d.Name()), faint.Sprint(d.Serial()))
	for _, sn := range d.Sensors() {
		fmt.Printf("\n%s\n", color.New(color.FgGreen).Sprint(sn.Name()))

		requests, err := sn.PrincipalRequests()
		if err != nil {
			return err
		}
		for i, r := range requests {
			fmt.Printf("  %2d. %s\n", i+1, r)
		}

		if !natives {
			continue
		}
		profiles, err := sn.StreamProfiles()
		if err != nil {
			return err
		}
		faint.Println("  native:")
		for _, p := range profiles {
			faint.Printf("      %s\n", p)
		}
	}
	return nil
}
