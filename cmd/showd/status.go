package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/coreman2200/arcaluminis-show/internal/player"
)

func newStatusCommand(opts *options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the players of a running showd",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				cfg, err := opts.load()
				if err != nil {
					return err
				}
				addr = cfg.HTTP.Addr
			}
			client := &http.Client{Timeout: 3 * time.Second}
			resp, err := client.Get("http://" + addr + "/api/players")
			if err != nil {
				return fmt.Errorf("showd not reachable at %s: %w", addr, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("showd answered %s", resp.Status)
			}
			var players []player.Status
			if err := json.NewDecoder(resp.Body).Decode(&players); err != nil {
				return fmt.Errorf("decode status: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderStatus(players))
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "showd address (defaults to http.addr from --config)")
	return cmd
}

func renderStatus(players []player.Status) string {
	rows := make([][]string, 0, len(players))
	for _, p := range players {
		role := "free"
		switch {
		case p.AutoStopped:
			role = "slave (black)"
		case p.Slave:
			role = "slave"
		}
		rows = append(rows, []string{
			p.ID,
			p.State.String(),
			p.ClipID,
			strconv.Itoa(p.Cursor),
			role,
			strconv.FormatUint(p.Frames, 10),
		})
	}
	return renderTable([]string{"PLAYER", "STATE", "CLIP", "CURSOR", "ROLE", "FRAMES"}, rows, 3, 5)
}
