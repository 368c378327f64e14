package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sofmeright/dockergen/src/engine"
	"github.com/sofmeright/dockergen/src/output"
)

var (
	inspectHost     string
	inspectCertPath string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <image>",
	Short: "Show the exposed ports and command of a local image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn := engine.Connection{Host: cfg.Engine.Host, CertPath: cfg.Engine.CertPath}
		if inspectHost != "" {
			conn.Host = inspectHost
		}
		if inspectCertPath != "" {
			conn.CertPath = inspectCertPath
		}

		eng, err := engine.Open(cfg.Engine.Name, conn, logger.Named("engine"))
		if err != nil {
			return fmt.Errorf("connecting to engine: %s", engine.Canonicalize(err))
		}
		defer eng.Close()

		info, err := eng.InspectImage(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("inspecting %s: %w", args[0], err)
		}

		w := cmd.OutOrStdout()
		sec := output.NewSection(w, args[0], 0, output.UseColor())
		sec.KV("id", info.ID)
		sec.KV("expose", strings.Join(info.ExposedPorts, " "))
		sec.KV("cmd", strings.Join(info.Cmd, " "))
		sec.Close()

		if ports := tcpPorts(info.ExposedPorts); len(ports) > 0 {
			output.Instructions(w, args[0], ports)
		}
		return nil
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectHost, "host", "", "engine endpoint (default: engine.host from config)")
	inspectCmd.Flags().StringVar(&inspectCertPath, "cert-path", "", "TLS certificate directory")
	rootCmd.AddCommand(inspectCmd)
}

// tcpPorts extracts port numbers from "port/tcp" entries.
func tcpPorts(exposed []string) []int {
	var ports []int
	for _, e := range exposed {
		num, proto, _ := strings.Cut(e, "/")
		if proto != "" && proto != "tcp" {
			continue
		}
		var p int
		if _, err := fmt.Sscanf(num, "%d", &p); err == nil {
			ports = append(ports, p)
		}
	}
	return ports
}
