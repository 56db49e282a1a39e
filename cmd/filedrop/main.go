package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"filedrop/internal/batch"
	"filedrop/internal/client"
	"filedrop/internal/domain"
)

type metaFlags map[string]any

func (m metaFlags) String() string { return fmt.Sprint(map[string]any(m)) }

func (m metaFlags) Set(value string) error {
	key, val, ok := strings.Cut(value, "=")
	if !ok || key == "" {
		return fmt.Errorf("meta entries take the form key=value, got %q", value)
	}
	m[key] = val
	return nil
}

func main() {
	_ = godotenv.Load()

	var (
		serverURL = flag.String("server", "http://localhost:8080", "files service base URL")
		apiKey    = flag.String("api-key", os.Getenv("FILEDROP_API_KEY"), "API key for the files service")
		kindID    = flag.String("kind", "attachment", "file kind to upload as")
		maxSize   = flag.Int64("max-size", 100*1024*1024, "local size limit in bytes, 0 disables the check")
		meta      = metaFlags{}
	)
	flag.Var(meta, "meta", "metadata entry key=value, repeatable")
	flag.Parse()

	logger := log.Default()

	paths := flag.Args()
	if len(paths) == 0 {
		logger.Fatal("no files given; usage: filedrop [flags] file...")
	}

	files := make([]batch.File, 0, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			logger.Fatal("cannot stat file", "path", path, "err", err)
		}
		p := path
		files = append(files, batch.File{
			Name: p,
			Size: info.Size(),
			Open: func() (io.ReadCloser, error) { return os.Open(p) },
		})
	}

	kind := domain.FileKind{ID: *kindID, MaxSizeBytes: *maxSize}
	coordinator := batch.New(kind, client.New(*serverURL, *apiKey), batch.Options{Logger: logger})
	coordinator.Notify(func(ev batch.Event) {
		switch ev.Type {
		case batch.EventChange:
			for _, r := range ev.Records {
				if r.Err != nil {
					logger.Warn("file failed", "name", r.Name, "err", r.Err)
				}
			}
		case batch.EventDone:
			logger.Info("batch uploaded", "files", len(ev.Done))
			for _, d := range ev.Done {
				fmt.Printf("%s\t%s\n", d.ID, d.Kind)
			}
		}
	})

	if err := coordinator.SetFiles(files); err != nil {
		logger.Fatal("failed to stage files", "err", err)
	}
	if err := coordinator.Err(); err != nil {
		logger.Fatal("batch rejected", "err", err)
	}

	// First interrupt aborts the batch, second one exits hard.
	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		logger.Warn("aborting upload")
		if err := coordinator.Abort(); err != nil {
			logger.Error("abort failed", "err", err)
		}
		<-stop
		os.Exit(1)
	}()

	if err := coordinator.Upload(context.Background(), meta); err != nil {
		logger.Fatal("upload failed to start", "err", err)
	}

	failed := 0
	for _, r := range coordinator.Files() {
		if r.Status != batch.StatusUploaded {
			failed++
		}
	}
	if failed > 0 {
		logger.Error("some files did not upload", "failed", failed, "total", len(paths))
		os.Exit(1)
	}
}
