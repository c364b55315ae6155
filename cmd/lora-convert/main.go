// Command lora-convert converts HuggingFace PEFT adapter files into the
// framework's SafeTensors naming convention.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/lora/peft"
	"github.com/born-ml/lora/tensor"
)

func main() {
	app := &cli.Command{
		Name:  "lora-convert",
		Usage: "Convert PEFT adapter weights to the framework's format",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			fileCmd(),
			dirCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func fileCmd() *cli.Command {
	var (
		input   string
		output  string
		tag     string
		typed   bool
		dummies bool
	)

	return &cli.Command{
		Name:  "file",
		Usage: "Convert a single adapter_model.safetensors file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "path to the PEFT safetensors file",
				Required:    true,
				Destination: &input,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "path for the converted safetensors file",
				Required:    true,
				Destination: &output,
			},
			&cli.StringFlag{
				Name:        "tag",
				Usage:       "model tag used in output key prefixes (e.g. llama)",
				Value:       "llama",
				Destination: &tag,
			},
			&cli.BoolFlag{
				Name:        "typed",
				Usage:       "classify layers into roles and prefix keys accordingly",
				Value:       true,
				Destination: &typed,
			},
			&cli.BoolFlag{
				Name:        "dummy-embeddings",
				Usage:       "insert zero embedding factors when the file has none (typed mode)",
				Destination: &dummies,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if typed {
				return peft.ConvertTyped(input, output, tag, tensor.CPU, dummies)
			}
			return peft.Convert(input, output, "lora_"+tag, tensor.CPU)
		},
	}
}

func dirCmd() *cli.Command {
	var (
		input   string
		output  string
		tag     string
		typed   bool
		dummies bool
	)

	return &cli.Command{
		Name:  "dir",
		Usage: "Convert a PEFT adapter directory (config + weights)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "path to the PEFT adapter directory",
				Required:    true,
				Destination: &input,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "path for the converted safetensors file",
				Required:    true,
				Destination: &output,
			},
			&cli.StringFlag{
				Name:        "tag",
				Usage:       "model tag used in output key prefixes (e.g. llama)",
				Value:       "llama",
				Destination: &tag,
			},
			&cli.BoolFlag{
				Name:        "typed",
				Usage:       "classify layers into roles and prefix keys accordingly",
				Value:       true,
				Destination: &typed,
			},
			&cli.BoolFlag{
				Name:        "dummy-embeddings",
				Usage:       "insert zero embedding factors when the weights have none (typed mode)",
				Destination: &dummies,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if typed {
				return peft.ConvertDirTyped(input, output, tag, tensor.CPU, dummies)
			}
			return peft.ConvertDir(input, output, "lora_"+tag, tensor.CPU)
		},
	}
}
