// Command generate runs one generation to completion from the terminal and
// prints the final snapshot as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"letssora/internal/bootstrap"
	"letssora/internal/domain"
	"letssora/internal/infra"
	"letssora/internal/lifecycle"
)

type refFlags []string

func (r *refFlags) String() string { return strings.Join(*r, ",") }

func (r *refFlags) Set(v string) error {
	*r = append(*r, v)
	return nil
}

func main() {
	var (
		modeFlag   string
		promptFlag string
		sizeFlag   string
		quality    string
		seconds    int
		owner      string
		refs       refFlags
	)
	flag.StringVar(&modeFlag, "mode", "image", "generation mode (image or video)")
	flag.StringVar(&promptFlag, "prompt", "", "prompt text")
	flag.StringVar(&sizeFlag, "size", "", "output size, e.g. 1024x1024 or 720x1280")
	flag.StringVar(&quality, "quality", "", "image quality")
	flag.IntVar(&seconds, "seconds", 0, "video duration in seconds")
	flag.StringVar(&owner, "owner", "", "history owner id")
	flag.Var(&refs, "ref", "reference image file (repeatable, image mode only)")
	flag.Parse()

	_ = godotenv.Load()

	mode, ok := domain.ParseMode(modeFlag)
	if !ok {
		fmt.Fprintf(os.Stderr, "unsupported mode %q\n", modeFlag)
		os.Exit(2)
	}

	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := infra.NewLogger("cli").With().Str("cmd", "generate").Str("mode", string(mode)).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	references := make([][]byte, 0, len(refs))
	for _, path := range refs {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read reference %s: %v\n", path, err)
			os.Exit(1)
		}
		references = append(references, data)
	}

	services, err := bootstrap.Build(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise services")
	}
	defer services.Close()

	if strings.TrimSpace(owner) == "" {
		owner = cfg.DefaultOwnerID
	}
	ctrl := lifecycle.New(services.LifecycleDeps(), services.LifecycleOptions(owner, &logger))
	if _, err := ctrl.Submit(ctx, domain.GenerationRequest{
		Mode:            mode,
		Prompt:          promptFlag,
		Size:            sizeFlag,
		Quality:         quality,
		DurationSeconds: seconds,
		ReferenceImages: references,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "submit: %v\n", err)
		os.Exit(1)
	}

	snap, err := ctrl.Wait(ctx)
	if errors.Is(err, context.Canceled) {
		ctrl.Reset()
		fmt.Fprintln(os.Stderr, "interrupted; upstream job abandoned")
		os.Exit(130)
	}

	// Inline payloads are not useful on a terminal.
	if snap.Result != nil {
		snap.Result.MediaInlinePayload = nil
	}
	if snap.Record != nil {
		snap.Record.Result.MediaInlinePayload = nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(snap)

	if snap.State != lifecycle.StateCompleted {
		os.Exit(1)
	}
}
