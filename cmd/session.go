package cmd

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/kilianp07/roaming/core/coordinator"
	"github.com/kilianp07/roaming/core/model"
)

type targetFlags struct {
	level string
	id    string
}

func (f *targetFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.level, "level", "evse", "target level: evse, charging_station or charging_pool")
	cmd.Flags().StringVar(&f.id, "target", "", "identifier of the targeted EVSE, station or pool")
}

func (f targetFlags) target() (coordinator.Target, error) {
	lvl, ok := model.ParseLevel(f.level)
	if !ok {
		return coordinator.Target{}, fmt.Errorf("unknown level %q", f.level)
	}
	return coordinator.Target{Level: lvl, ID: f.id}, nil
}

var reserveFlags struct {
	target   targetFlags
	id       string
	duration int
	provider string
	tokens   []string
}

var reserveCmd = &cobra.Command{
	Use:   "reserve",
	Short: "Reserve an EVSE, a charging station or a charging pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := reserveFlags.target.target()
		if err != nil {
			return err
		}
		body := map[string]any{
			"target":           t,
			"reservation_id":   reserveFlags.id,
			"duration_seconds": reserveFlags.duration,
			"provider_id":      reserveFlags.provider,
			"auth_tokens":      reserveFlags.tokens,
		}
		var res map[string]any
		if err := callAPI(commandContext(cmd), http.MethodPost, "/api/reservations", body, &res); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var cancelFlags struct {
	reason string
}

var cancelCmd = &cobra.Command{
	Use:   "cancel-reservation <id>",
	Short: "Cancel a reservation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/api/reservations/" + url.PathEscape(args[0])
		if cancelFlags.reason != "" {
			path += "?reason=" + url.QueryEscape(cancelFlags.reason)
		}
		var res map[string]any
		if err := callAPI(commandContext(cmd), http.MethodDelete, path, nil, &res); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var startFlags struct {
	target      targetFlags
	reservation string
	session     string
	provider    string
	token       string
}

var remoteStartCmd = &cobra.Command{
	Use:   "remote-start",
	Short: "Start a charging session",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := startFlags.target.target()
		if err != nil {
			return err
		}
		body := map[string]any{
			"target":         t,
			"reservation_id": startFlags.reservation,
			"session_id":     startFlags.session,
			"provider_id":    startFlags.provider,
			"auth_token":     startFlags.token,
		}
		var res map[string]any
		if err := callAPI(commandContext(cmd), http.MethodPost, "/api/sessions/start", body, &res); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var stopFlags struct {
	keepAlive bool
	provider  string
}

var remoteStopCmd = &cobra.Command{
	Use:   "remote-stop <session-id>",
	Short: "Stop a charging session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		handling := model.ReservationClose
		if stopFlags.keepAlive {
			handling = model.ReservationKeepAlive
		}
		body := map[string]any{
			"reservation_handling": handling,
			"provider_id":          stopFlags.provider,
		}
		var res map[string]any
		path := "/api/sessions/" + url.PathEscape(args[0]) + "/stop"
		if err := callAPI(commandContext(cmd), http.MethodPost, path, body, &res); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	reserveFlags.target.bind(reserveCmd)
	reserveCmd.Flags().StringVar(&reserveFlags.id, "id", "", "reservation identifier, generated when empty")
	reserveCmd.Flags().IntVar(&reserveFlags.duration, "duration", 0, "reservation duration in seconds")
	reserveCmd.Flags().StringVar(&reserveFlags.provider, "provider", "", "e-mobility provider identifier")
	reserveCmd.Flags().StringSliceVar(&reserveFlags.tokens, "token", nil, "authentication tokens allowed to use the reservation")

	cancelCmd.Flags().StringVar(&cancelFlags.reason, "reason", "", "deleted, aborted or expired")

	startFlags.target.bind(remoteStartCmd)
	remoteStartCmd.Flags().StringVar(&startFlags.reservation, "reservation", "", "reservation to consume")
	remoteStartCmd.Flags().StringVar(&startFlags.session, "session", "", "session identifier, generated when empty")
	remoteStartCmd.Flags().StringVar(&startFlags.provider, "provider", "", "e-mobility provider identifier")
	remoteStartCmd.Flags().StringVar(&startFlags.token, "token", "", "authentication token")

	remoteStopCmd.Flags().BoolVar(&stopFlags.keepAlive, "keep-reservation", false, "keep the reservation after the session ends")
	remoteStopCmd.Flags().StringVar(&stopFlags.provider, "provider", "", "e-mobility provider identifier")

	rootCmd.AddCommand(reserveCmd, cancelCmd, remoteStartCmd, remoteStopCmd)
}
