package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/marcus-crane/invitation/config"
	"github.com/marcus-crane/invitation/logging"
)

// commandContext loads configuration lazily and at most once per run.
type commandContext struct {
	contentFlag *string

	cfg     *config.Config
	content *config.Content
}

func newCommandContext(contentFlag *string) *commandContext {
	return &commandContext{contentFlag: contentFlag}
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	if c.cfg != nil {
		return *c.cfg, nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config.Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if c.contentFlag != nil && *c.contentFlag != "" {
		cfg.Invitation.ContentPath = *c.contentFlag
	}
	c.cfg = &cfg
	return cfg, nil
}

func (c *commandContext) ensureContent() (config.Content, error) {
	if c.content != nil {
		return *c.content, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return config.Content{}, err
	}
	content, err := config.LoadContent(cfg.Invitation.ContentPath)
	if err != nil {
		return content, err
	}
	c.content = &content
	return content, nil
}

func newRootCommand() *cobra.Command {
	var contentFlag string

	ctx := newCommandContext(&contentFlag)
	serve := newServeCommand(ctx)

	rootCmd := &cobra.Command{
		Use:           "invitation",
		Short:         "Animated wedding invitation server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logging.Setup(cfg.GetLogLevel())
			return nil
		},
		RunE: serve.RunE,
	}

	rootCmd.PersistentFlags().StringVarP(&contentFlag, "content", "c", "", "Content file (overrides INVITATION_CONTENT)")

	rootCmd.AddCommand(serve)
	rootCmd.AddCommand(newMigrateCommand(ctx))
	rootCmd.AddCommand(newWishesCommand(ctx))
	rootCmd.AddCommand(newSequenceCommand(ctx))

	return rootCmd
}
