package cli

import (
	"encoding/json"
	"os"

	"github.com/absmach/flcoord/pkg/sdk"
	"github.com/spf13/cobra"
)

var useCBOR bool

// NewUpdatesCmd submits updates read from JSON files, mostly for replaying
// captured client traffic.
func NewUpdatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "updates [submit]",
		Short: "Round updates",
		Long:  `Submit round updates on behalf of a client.`,
	}

	submitCmd := &cobra.Command{
		Use:   "submit <update.json>",
		Short: "Submit update",
		Long: `Submit an update stored as JSON.

Examples:
  # Submit as JSON
  flcoord-cli updates submit update.json

  # Submit as CBOR
  flcoord-cli updates submit update.json --cbor`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			var u sdk.Update
			if err := json.Unmarshal(data, &u); err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			submit := fsdk.SubmitUpdate
			if useCBOR {
				submit = fsdk.SubmitUpdateCBOR
			}
			res, err := submit(u)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, res)
		},
	}
	submitCmd.Flags().BoolVar(&useCBOR, "cbor", false, "encode the update as CBOR")

	cmd.AddCommand(submitCmd)

	return cmd
}
