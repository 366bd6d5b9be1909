package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"igstories/internal/downloader"
	"igstories/pkg/metadata"
	"igstories/pkg/models"
	"igstories/pkg/storage"
	"igstories/pkg/ui"
)

var downloadAll bool

// downloadCmd represents the download command
var downloadCmd = &cobra.Command{
	Use:   "download <username> [story-id]",
	Short: "Download stories of an account",
	Long: `Download one story, or every active story with --all.

Files are written to the output directory as <username>/<story-id>.<ext>.
Stories already present on disk are skipped unless overwrite_existing is set
in the configuration.`,
	Example: `  igstories download natgeo 3281947561234567890
  igstories download natgeo --all --output ./stories --concurrent 5`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	downloadCmd.Flags().BoolVar(&downloadAll, "all", false, "download every active story")
	downloadCmd.Flags().StringP("output", "o", "", "output directory (default ./downloads)")
	downloadCmd.Flags().Int("concurrent", 0, "number of concurrent downloads with --all")
}

func runDownload(cmd *cobra.Command, args []string) error {
	handle, err := parseHandle(args[0])
	if err != nil {
		return err
	}
	if !downloadAll && len(args) < 2 {
		return fmt.Errorf("a story id is required unless --all is given")
	}
	if downloadAll && len(args) == 2 {
		return fmt.Errorf("--all does not take a story id")
	}

	eng, err := newEngine(cfg, log)
	if err != nil {
		return err
	}
	manager, err := storage.NewManager(cfg.Output)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if downloadAll {
		return downloadEvery(ctx, eng, manager, handle)
	}
	return downloadOne(ctx, eng, manager, handle, args[1])
}

func downloadOne(ctx context.Context, eng *engine, manager *storage.Manager, handle, contentID string) error {
	res := eng.orch.DownloadContent(ctx, handle, contentID)
	if !res.Success {
		return res.Err
	}

	if manager.IsDownloaded(handle, res.Item) {
		printer.Warning("Story %s of @%s is already downloaded: %s", res.Item.ID, handle, manager.Path(handle, res.Item))
		return nil
	}

	path, err := manager.Save(handle, res.Item, bytes.NewReader(res.Data))
	if err != nil {
		return err
	}
	if res.Item.ID != contentID {
		printer.Warning("Story %s not found, downloaded %s instead", contentID, res.Item.ID)
	}
	writeMetadata(handle, res.Item, nil, "", path, int64(len(res.Data)))
	printer.Success("Saved %s (%s)", path, ui.FormatBytes(int64(len(res.Data))))
	return nil
}

// writeMetadata stores the sidecar of a downloaded story when enabled
func writeMetadata(handle string, item models.ContentItem, account *models.AccountInfo, source, path string, size int64) {
	if !cfg.Output.WriteMetadata {
		return
	}
	if err := metadata.FromStory(handle, item, account, source, size, time.Now()).Save(path); err != nil {
		printer.Warning("Could not write metadata for %s: %v", item.ID, err)
	}
}

func downloadEvery(ctx context.Context, eng *engine, manager *storage.Manager, handle string) error {
	res := eng.orch.ResolveContent(ctx, handle, false)
	if !res.Success {
		return res.Err
	}
	if len(res.Items) == 0 {
		printer.Info("@%s has no active stories", handle)
		return nil
	}

	printer.Info("Found %d stories from @%s (source: %s)", len(res.Items), handle, res.Source)

	if cfg.Output.WriteMetadata {
		if removed, err := metadata.CleanOrphaned(manager.OutputDir()); err != nil {
			log.WithError(err).Warn("failed to clean orphaned metadata")
		} else if removed > 0 {
			log.InfoWithFields("removed orphaned metadata", map[string]interface{}{"count": removed})
		}
	}

	progress := ui.NewProgress(printer, handle, len(res.Items))
	var failures []downloader.JobResult
	downloader.DownloadAll(ctx, cfg.Download.ConcurrentDownloads, handle, res.Items,
		eng.executor, manager, eng.pacer, log.WithField("component", "pool"),
		func(r downloader.JobResult) {
			switch {
			case r.Skipped:
				progress.Skip()
			case r.Success:
				progress.Complete(r.Size)
				writeMetadata(handle, r.Job.Item, res.Account, res.Source, r.Path, int64(r.Size))
			default:
				progress.Fail()
				failures = append(failures, r)
			}
		})
	progress.Finish()

	for _, f := range failures {
		printer.Error("Story %s: %v", f.Job.Item.ID, f.Error)
	}
	if len(failures) > 0 {
		return fmt.Errorf("%d of %d downloads failed", len(failures), len(res.Items))
	}
	return ctx.Err()
}
