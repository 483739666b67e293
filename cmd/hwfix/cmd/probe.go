// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/hwfix-dev/hwfix/internal/probe"
	"github.com/hwfix-dev/hwfix/internal/service"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func getProbeCmd() *cobra.Command {
	probeCmd := &cobra.Command{
		Use:   "probe [fix-name]",
		Short: "Print the facts probed from this system",
		Long: `Probe prints the base system facts (distro family, kernel version and so
on) as YAML. When a fix name is given, the facts that fix declares are
probed and printed too - the same values its conditions would see during
an apply.`,
		Args: cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			projectDir, _ := cmd.Flags().GetString("project-dir")

			prober := probe.New()
			facts, err := prober.BaseFacts()
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				os.Exit(1)
			}

			if len(args) == 1 {
				_, fix, err := resolveFix(projectDir, args[0])
				if err != nil {
					fmt.Printf("Error: %v\n", err)
					os.Exit(1)
				}
				fixFacts, err := probe.GatherFacts(cmd.Context(), prober, service.NewController(), fix.Facts)
				if err != nil {
					fmt.Printf("Error: %v\n", err)
					os.Exit(1)
				}
				for name, value := range fixFacts {
					facts[name] = value
				}
			}

			out, err := yaml.Marshal(facts)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Print(string(out))
		},
	}

	probeCmd.Flags().String("project-dir", ".", "Directory with a project-local fix library")

	return probeCmd
}
