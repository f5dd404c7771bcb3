package cli

import "github.com/spf13/cobra"

var onlineOnly bool

func clientsCmds() []cobra.Command {
	return []cobra.Command{
		{
			Use:   "register <client_id> <sample_count>",
			Short: "Register client",
			Long:  `Register a client, or refresh the sample count of a known one.`,
			Run: func(cmd *cobra.Command, args []string) {
				if len(args) != 2 {
					logUsageCmd(*cmd, cmd.Use)

					return
				}
				samples, err := parseUint(args[1])
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}

				c, err := fsdk.RegisterClient(args[0], samples)
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				logJSONCmd(*cmd, c)
			},
		},
		{
			Use:   "view <client_id>",
			Short: "View client",
			Long:  `View client.`,
			Run: func(cmd *cobra.Command, args []string) {
				if len(args) != 1 {
					logUsageCmd(*cmd, cmd.Use)

					return
				}

				c, err := fsdk.GetClient(args[0])
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				logJSONCmd(*cmd, c)
			},
		},
		{
			Use:   "list",
			Short: "List clients",
			Long:  `List clients ordered by id.`,
			Run: func(cmd *cobra.Command, args []string) {
				if len(args) != 0 {
					logUsageCmd(*cmd, cmd.Use)

					return
				}

				page, err := fsdk.ListClients(onlineOnly)
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				logJSONCmd(*cmd, page)
			},
		},
		{
			Use:   "heartbeat <client_id>",
			Short: "Send heartbeat",
			Long:  `Refresh a client's liveness.`,
			Run: func(cmd *cobra.Command, args []string) {
				if len(args) != 1 {
					logUsageCmd(*cmd, cmd.Use)

					return
				}

				if _, err := fsdk.Heartbeat(args[0]); err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				logOKCmd(*cmd)
			},
		},
		{
			Use:   "disconnect <client_id>",
			Short: "Disconnect client",
			Long:  `Mark a client offline.`,
			Run: func(cmd *cobra.Command, args []string) {
				if len(args) != 1 {
					logUsageCmd(*cmd, cmd.Use)

					return
				}

				if _, err := fsdk.DisconnectClient(args[0]); err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				logOKCmd(*cmd)
			},
		},
	}
}

func NewClientsCmd() *cobra.Command {
	cmd := cobra.Command{
		Use:   "clients [register|view|list|heartbeat|disconnect]",
		Short: "Training clients",
		Long:  `Register and inspect training clients.`,
	}

	cmds := clientsCmds()
	for i := range cmds {
		cmd.AddCommand(&cmds[i])
	}
	cmds[2].Flags().BoolVar(&onlineOnly, "online", false, "list online clients only")

	return &cmd
}
