package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wierd-stuff-inc/scribes/internal/server"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Render the book, then serve it and re-render pages as they change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				a.cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "address to listen on (overrides server.host)")
	cmd.Flags().IntVar(&port, "port", 0, "port to listen on (overrides server.port)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	if err := a.renderer.Bootstrap(); err != nil {
		return err
	}
	// failed pages are logged by RenderBook and retried when they change
	_, _ = a.renderer.RenderBook(ctx)

	queue := server.NewRenderQueue()
	watcher, err := server.NewWatcher(a.cfg.BookDir, queue, a.logs.Get("watch"))
	if err != nil {
		return err
	}
	srv := server.New(server.Options{
		Addr:        a.cfg.Server.Addr(),
		OutputDir:   a.cfg.OutputDir,
		Pages:       a.renderer,
		Compression: a.cfg.Compression,
		Log:         a.logs.Get("server"),
	})

	render := a.logs.Get("render")
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return watcher.Run(ctx)
	})
	g.Go(func() error {
		return queue.Run(ctx, func(ctx context.Context, path string) {
			if _, err := a.renderer.RenderPage(ctx, path); err != nil {
				render.Error("cannot render page", "file", path, "error", err)
			}
		})
	})
	g.Go(func() error {
		return srv.Run(ctx)
	})
	return g.Wait()
}
