package main

import (
	"fmt"

	"github.com/poiesic/annotit"
	"github.com/poiesic/annotit/config"
	"github.com/urfave/cli/v2"
)

func countCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ing, err := annotit.NewIngester(c.Context, cfg)
	if err != nil {
		return err
	}
	defer ing.Close()

	sourceCount, err := ing.Source().Count(c.Context, cfg.Source.IndexName)
	if err != nil {
		return fmt.Errorf("counting %s: %w", cfg.Source.IndexName, err)
	}
	fmt.Fprintf(c.App.Writer, "source %s: %d\n", cfg.Source.IndexName, sourceCount)

	if ing.Mapper().InPlace() {
		return nil
	}
	processed := ing.Mapper().ProcessedIndex()
	sinkCount, err := ing.Sink().Count(c.Context, processed)
	if err != nil {
		return fmt.Errorf("counting %s: %w", processed, err)
	}
	fmt.Fprintf(c.App.Writer, "sink %s: %d\n", processed, sinkCount)
	return nil
}

func schemaCommand(c *cli.Context) error {
	schema, err := config.JSONSchema()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, string(schema))
	return err
}

func showCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	out, err := cfg.YAML()
	if err != nil {
		return err
	}
	_, err = c.App.Writer.Write(out)
	return err
}
