package main

import (
	"fmt"
	"net"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"optiattack/internal/logging"
	"optiattack/internal/nutserver"
	"optiattack/internal/oracle"
)

func newNUTCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nut",
		Short: "Reference network under test",
	}
	cmd.AddCommand(newNUTServeCmd())
	return cmd
}

func newNUTServeCmd() *cobra.Command {
	var (
		host     string
		port     int
		basePath string
		logLevel string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the toy channel classifier over the oracle protocol",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if port <= 0 || port > 65535 {
				return fmt.Errorf("invalid port: %d", port)
			}
			logger, closeLog, err := logging.New(logging.Config{Level: logLevel, Output: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer func() {
				_ = closeLog()
			}()

			gin.SetMode(gin.ReleaseMode)
			server := nutserver.New(nutserver.Config{
				BasePath:       basePath,
				ControllerHost: host,
				ControllerPort: port,
			}, nutserver.NewChannelClassifier(), logger)
			return server.ListenAndServe(cmd.Context(), net.JoinHostPort(host, strconv.Itoa(port)))
		},
	}
	cmd.Flags().StringVar(&host, "host", "localhost", "listen host")
	cmd.Flags().IntVar(&port, "port", 38000, "listen port")
	cmd.Flags().StringVar(&basePath, "base-path", oracle.DefaultBasePath, "API base path")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "debug|info|warn|error")
	return cmd
}
