package main

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/marcus-crane/invitation/config"
	"github.com/marcus-crane/invitation/db"
	"github.com/marcus-crane/invitation/guestbook"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Bring the guestbook schema up to date",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			// Opening a SQL store applies any pending migrations
			store, err := db.Open(cfg.Database)
			if err != nil {
				return err
			}
			defer store.Close()
			if _, ok := store.(*db.SQLStore); !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "The %s backend has no schema to migrate\n", cfg.Database.Driver)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Guestbook schema is up to date")
			return nil
		},
	}
}

func newWishesCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "wishes",
		Short: "List the newest guestbook wishes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := db.Open(cfg.Database)
			if err != nil {
				return err
			}
			defer store.Close()

			wishes, err := guestbook.NewBridge(store).Latest(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(wishes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "The guestbook is empty")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderWishes(wishes))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of wishes to show")
	return cmd
}

func renderWishes(wishes []guestbook.Wish) string {
	rows := make([][]string, 0, len(wishes))
	for _, w := range wishes {
		received := "pending"
		if w.CreatedAt != nil {
			received = humanize.Time(*w.CreatedAt)
		}
		rows = append(rows, []string{w.Name, truncate(w.Message, 60), received})
	}
	return renderTable([]string{"Name", "Message", "Received"}, rows, nil)
}

func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}

func newSequenceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sequence",
		Short: "Print the scene sequence and its pacing",
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := ctx.ensureContent()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderSequence(content))
			return nil
		},
	}
}

func renderSequence(content config.Content) string {
	rows := make([][]string, 0, len(content.Scenes))
	for i, s := range content.Scenes {
		auto := content.AutoAdvance(i)
		dwell := "-"
		if auto {
			dwell = content.Playback.Dwell().String()
		}
		rows = append(rows, []string{strconv.Itoa(i), s.Kind, strconv.FormatBool(auto), dwell})
	}
	return renderTable(
		[]string{"#", "Scene", "Auto", "Dwell"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight},
	)
}
