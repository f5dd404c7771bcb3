package cli

import (
	"time"

	"github.com/absmach/flcoord/pkg/sdk"
	"github.com/absmach/flcoord/pkg/session"
	"github.com/spf13/cobra"
)

var (
	minClients      uint64 = 1
	maxParticipants uint64
	roundTimeout    time.Duration
	quorumTimeout   time.Duration
)

func sessionsCmds() []cobra.Command {
	return []cobra.Command{
		{
			Use:   "start <project_id> <total_rounds>",
			Short: "Start session",
			Long:  `Start a training session for a project.`,
			Run: func(cmd *cobra.Command, args []string) {
				if len(args) != 2 {
					logUsageCmd(*cmd, cmd.Use)

					return
				}
				rounds, err := parseUint(args[1])
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}

				s, err := fsdk.StartSession(sdk.SessionConfig{
					ProjectID:       args[0],
					TotalRounds:     rounds,
					MinClients:      minClients,
					MaxParticipants: maxParticipants,
					RoundTimeout:    session.Duration(roundTimeout),
					QuorumTimeout:   session.Duration(quorumTimeout),
				})
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				logJSONCmd(*cmd, s)
			},
		},
		{
			Use:   "view <session_id>",
			Short: "View session",
			Long:  `View session.`,
			Run: func(cmd *cobra.Command, args []string) {
				if len(args) != 1 {
					logUsageCmd(*cmd, cmd.Use)

					return
				}

				s, err := fsdk.GetSession(args[0])
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				logJSONCmd(*cmd, s)
			},
		},
		{
			Use:   "list",
			Short: "List sessions",
			Long:  `List sessions in creation order.`,
			Run: func(cmd *cobra.Command, args []string) {
				if len(args) != 0 {
					logUsageCmd(*cmd, cmd.Use)

					return
				}

				page, err := fsdk.ListSessions(defOffset, defLimit)
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				logJSONCmd(*cmd, page)
			},
		},
		{
			Use:   "cancel <session_id>",
			Short: "Cancel session",
			Long:  `Cancel an active session.`,
			Run: func(cmd *cobra.Command, args []string) {
				if len(args) != 1 {
					logUsageCmd(*cmd, cmd.Use)

					return
				}

				s, err := fsdk.CancelSession(args[0])
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				logJSONCmd(*cmd, s)
			},
		},
		{
			Use:   "status",
			Short: "Show status",
			Long:  `Show the status of the most recent session.`,
			Run: func(cmd *cobra.Command, args []string) {
				if len(args) != 0 {
					logUsageCmd(*cmd, cmd.Use)

					return
				}

				st, err := fsdk.Status()
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				logJSONCmd(*cmd, st)
			},
		},
		{
			Use:   "model <session_id>",
			Short: "View global model",
			Long:  `View the newest global model of a session.`,
			Run: func(cmd *cobra.Command, args []string) {
				if len(args) != 1 {
					logUsageCmd(*cmd, cmd.Use)

					return
				}

				m, err := fsdk.GlobalModel(args[0])
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				logJSONCmd(*cmd, m)
			},
		},
		{
			Use:   "watch",
			Short: "Watch events",
			Long:  `Stream coordinator events until interrupted.`,
			Run: func(cmd *cobra.Command, args []string) {
				if len(args) != 0 {
					logUsageCmd(*cmd, cmd.Use)

					return
				}

				err := fsdk.Watch(cmd.Context(), func(frame []byte) error {
					logLineCmd(*cmd, string(frame))

					return nil
				})
				if err != nil && cmd.Context().Err() == nil {
					logErrorCmd(*cmd, err)
				}
			},
		},
	}
}

func NewSessionsCmd() *cobra.Command {
	cmd := cobra.Command{
		Use:   "sessions [start|view|list|cancel|status|model|watch]",
		Short: "Training sessions",
		Long:  `Start, inspect and cancel training sessions.`,
	}

	cmds := sessionsCmds()
	for i := range cmds {
		cmd.AddCommand(&cmds[i])
	}

	start := &cmds[0]
	start.Flags().Uint64Var(&minClients, "min-clients", minClients, "clients required before a round opens")
	start.Flags().Uint64Var(&maxParticipants, "max-participants", 0, "cap on invited clients per round (0 means all)")
	start.Flags().DurationVar(&roundTimeout, "round-timeout", 0, "round deadline (0 uses the coordinator default)")
	start.Flags().DurationVar(&quorumTimeout, "quorum-timeout", 0, "quorum deadline (0 uses the coordinator default)")

	cmd.PersistentFlags().Uint64VarP(&defOffset, "offset", "o", defOffset, "Offset")
	cmd.PersistentFlags().Uint64VarP(&defLimit, "limit", "l", defLimit, "Limit")

	return &cmd
}
