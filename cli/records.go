package cli

import "github.com/spf13/cobra"

func recordsCmds() []cobra.Command {
	return []cobra.Command{
		{
			Use:   "latest [session_id]",
			Short: "Latest record",
			Long:  `Show the newest round record of a session, or of the most recent session.`,
			Run: func(cmd *cobra.Command, args []string) {
				if len(args) > 1 {
					logUsageCmd(*cmd, cmd.Use)

					return
				}
				id := ""
				if len(args) == 1 {
					id = args[0]
				}

				rec, err := fsdk.LatestRecord(id)
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				logJSONCmd(*cmd, rec)
			},
		},
		{
			Use:   "list <session_id>",
			Short: "List records",
			Long:  `List a session's round records in round order.`,
			Run: func(cmd *cobra.Command, args []string) {
				if len(args) != 1 {
					logUsageCmd(*cmd, cmd.Use)

					return
				}

				page, err := fsdk.ListRecords(args[0], defOffset, defLimit)
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				logJSONCmd(*cmd, page)
			},
		},
	}
}

func NewRecordsCmd() *cobra.Command {
	cmd := cobra.Command{
		Use:   "records [latest|list]",
		Short: "Round records",
		Long:  `Inspect the per-round metrics ledger.`,
	}

	cmds := recordsCmds()
	for i := range cmds {
		cmd.AddCommand(&cmds[i])
	}

	cmd.PersistentFlags().Uint64VarP(&defOffset, "offset", "o", defOffset, "Offset")
	cmd.PersistentFlags().Uint64VarP(&defLimit, "limit", "l", defLimit, "Limit")

	return &cmd
}
