package main

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/anime-shed/microscan-go/internal/client"
	"github.com/anime-shed/microscan-go/internal/config"
	"github.com/anime-shed/microscan-go/internal/container"
	"github.com/anime-shed/microscan-go/internal/embedding"
	"github.com/anime-shed/microscan-go/internal/factory"
	"github.com/anime-shed/microscan-go/internal/logger"
	"github.com/anime-shed/microscan-go/internal/optics"
	"github.com/anime-shed/microscan-go/pkg/models"
)

// exitConnectionError is returned when the scoring endpoint could not be reached
const exitConnectionError = 2

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if exitErr, ok := err.(cli.ExitCoder); ok {
			os.Exit(exitErr.ExitCode())
		}
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:  "scan",
		Usage: "estimate the microplastic contamination risk of a water or surface photo",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "image", Aliases: []string{"i"}, Usage: "path to a local image"},
			&cli.StringFlag{Name: "url", Aliases: []string{"u"}, Usage: "http(s) URL of an image"},
			&cli.StringFlag{
				Name:    "server",
				Usage:   "scoring endpoint base URL",
				Value:   "http://localhost:8080",
				EnvVars: []string{"SCORING_BASE_URL"},
			},
			&cli.StringFlag{Name: "overlay", Usage: "write an annotated PNG of detected edges and debris to this path"},
			&cli.BoolFlag{Name: "local", Usage: "score in-process instead of calling the scoring endpoint"},
			&cli.DurationFlag{Name: "timeout", Value: 90 * time.Second, Usage: "overall deadline"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "debug logging"},
		},
		Writer: out,
		// main maps errors to exit codes itself
		ExitErrHandler: func(*cli.Context, error) {},
		Action: func(c *cli.Context) error {
			if c.Bool("verbose") {
				logger.SetLevel("debug")
			}
			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			resp, err := run(ctx, runOptions{
				imagePath:   c.String("image"),
				imageURL:    c.String("url"),
				server:      c.String("server"),
				overlayPath: c.String("overlay"),
				local:       c.Bool("local"),
			})
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			enc := json.NewEncoder(c.App.Writer)
			enc.SetIndent("", "  ")
			if err := enc.Encode(resp); err != nil {
				return err
			}
			if resp.IsConnectionError() {
				return cli.Exit("scoring endpoint unreachable", exitConnectionError)
			}
			return nil
		},
	}
}

type runOptions struct {
	imagePath   string
	imageURL    string
	server      string
	overlayPath string
	local       bool
}

func run(ctx context.Context, opts runOptions) (*models.AnalysisResponse, error) {
	data, err := loadImage(ctx, opts)
	if err != nil {
		return nil, err
	}

	features := optics.NewExtractor()
	defer features.Close()

	metrics, img, err := features.ExtractBytes(data)
	if err != nil {
		return nil, err
	}
	if opts.overlayPath != "" {
		if err := writeOverlay(features, img, opts.overlayPath); err != nil {
			return nil, err
		}
	}

	if opts.local {
		return scoreLocally(ctx, data)
	}

	emb := embedding.NewExtractor(embedding.NewHandle(embedding.LoadDescriptor)).Embed(ctx, img)

	scoring, err := client.New(opts.server, client.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("invalid --server: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"server":        scoring.BaseURL(),
		"embedding_dim": len(emb),
	}).Debug("Sending scan to scoring endpoint")
	return scoring.Analyze(ctx, data, &metrics, emb), nil
}

func loadImage(ctx context.Context, opts runOptions) ([]byte, error) {
	var (
		kind     factory.StorageType
		location string
	)
	switch {
	case opts.imagePath != "" && opts.imageURL != "":
		return nil, fmt.Errorf("use only one of --image and --url")
	case opts.imagePath != "":
		kind, location = factory.LocalStorage, opts.imagePath
	case opts.imageURL != "":
		kind, location = factory.HTTPStorage, opts.imageURL
	default:
		return nil, fmt.Errorf("one of --image or --url is required")
	}

	source, err := factory.NewStorageFactory().CreateStorage(kind)
	if err != nil {
		return nil, err
	}
	return source.FetchImage(ctx, location)
}

// scoreLocally runs the whole pipeline in-process with the environment configuration
func scoreLocally(ctx context.Context, data []byte) (*models.AnalysisResponse, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, err
	}
	c, err := container.NewContainer(cfg)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.Scanner().Scan(ctx, data)
}

func writeOverlay(features optics.FeatureExtractor, img image.Image, path string) error {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if err := features.Annotate(dst, img); err != nil {
		return fmt.Errorf("failed to annotate image: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create overlay: %w", err)
	}
	if err := png.Encode(f, dst); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode overlay: %w", err)
	}
	return f.Close()
}
