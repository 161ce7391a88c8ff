package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jwulff/docqa/internal/api"
	"github.com/jwulff/docqa/internal/mcpserver"
)

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid document id %q", s)
	}
	return id, nil
}

func parseKind(s string) (api.MediaKind, error) {
	switch k := api.MediaKind(strings.ToUpper(s)); k {
	case "", api.KindPDF, api.KindAudio, api.KindVideo:
		return k, nil
	}
	return "", fmt.Errorf("unknown type %q (want pdf, audio or video)", s)
}

func writeDocuments(w io.Writer, docs []api.Document) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tSTATUS\tSIZE\tUPLOADED")
	for _, d := range docs {
		uploaded := "-"
		if !d.UploadedAt.IsZero() {
			uploaded = humanize.Time(d.UploadedAt.Time)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			d.ID, d.DisplayName(), d.Type, d.Status, humanize.Bytes(uint64(max(d.FileSize, 0))), uploaded)
	}
	return tw.Flush()
}

func listCMD(cfgPath *string) *cobra.Command {
	var kind string
	var list = &cobra.Command{
		Use:   "list",
		Short: "List documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseKind(kind)
			if err != nil {
				return err
			}
			e, err := setup(cmd, *cfgPath, false)
			if err != nil {
				return err
			}
			defer e.Close()

			var docs []api.Document
			if k == "" {
				docs, err = e.client.List(cmd.Context())
			} else {
				docs, err = e.client.ListByType(cmd.Context(), k)
			}
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No documents")
				return nil
			}
			return writeDocuments(cmd.OutOrStdout(), docs)
		},
	}
	list.Flags().StringVarP(&kind, "type", "t", "", "only pdf, audio or video documents")
	return list
}

func uploadCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "upload FILE...",
		Short: "Upload PDF, audio or video files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, *cfgPath, false)
			if err != nil {
				return err
			}
			defer e.Close()

			var failed []error
			for _, path := range args {
				doc, err := uploadFile(cmd, e.client, path)
				if err != nil {
					failed = append(failed, fmt.Errorf("%s: %w", path, err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s as #%d (%s)\n", doc.DisplayName(), doc.ID, doc.Status)
			}
			return errors.Join(failed...)
		},
	}
}

func uploadFile(cmd *cobra.Command, client *api.Client, path string) (api.Document, error) {
	ct, err := api.DetectContentType(path)
	if err != nil {
		return api.Document{}, err
	}
	if err := api.ValidateContentType(ct); err != nil {
		return api.Document{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return api.Document{}, err
	}
	defer f.Close()
	return client.Upload(cmd.Context(), filepath.Base(path), ct, f)
}

func deleteCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			e, err := setup(cmd, *cfgPath, false)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.client.Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted #%d\n", id)
			return nil
		},
	}
}

func downloadCMD(cfgPath *string) *cobra.Command {
	var output string
	var download = &cobra.Command{
		Use:   "download ID",
		Short: "Save the original uploaded file of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			e, err := setup(cmd, *cfgPath, false)
			if err != nil {
				return err
			}
			defer e.Close()

			if output == "-" {
				return e.client.Download(cmd.Context(), id, cmd.OutOrStdout())
			}
			if output == "" {
				doc, err := e.client.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				output = filepath.Base(doc.DisplayName())
			}
			return downloadFile(cmd, e.client, id, output)
		},
	}
	download.Flags().StringVarP(&output, "output", "o", "", `destination file, "-" for stdout (default: the uploaded file name)`)
	return download
}

func downloadFile(cmd *cobra.Command, client *api.Client, id int64, path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	err = client.Download(cmd.Context(), id, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved #%d to %s\n", id, path)
	return nil
}

func summaryCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "summary ID",
		Short: "Print a document's summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			e, err := setup(cmd, *cfgPath, false)
			if err != nil {
				return err
			}
			defer e.Close()

			resp, err := e.client.Summary(cmd.Context(), id)
			if err != nil {
				return err
			}
			if resp.Summary == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "No summary available")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Summary)
			return nil
		},
	}
}

func timestampsCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "timestamps ID",
		Short: "Print the topic timeline of an audio or video document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			e, err := setup(cmd, *cfgPath, false)
			if err != nil {
				return err
			}
			defer e.Close()

			resp, err := e.client.Timestamps(cmd.Context(), id)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, t := range resp.Timestamps {
				fmt.Fprintf(tw, "%s-%s\t%s\n", t.FormattedStartTime, t.FormattedEndTime, t.Topic)
			}
			return tw.Flush()
		},
	}
}

func askCMD(cfgPath *string) *cobra.Command {
	var session string
	var ask = &cobra.Command{
		Use:   "ask ID QUESTION...",
		Short: "Ask a question about a document",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			question := strings.TrimSpace(strings.Join(args[1:], " "))
			if question == "" {
				return errors.New("question is empty")
			}
			e, err := setup(cmd, *cfgPath, false)
			if err != nil {
				return err
			}
			defer e.Close()

			resp, err := e.client.Chat(cmd.Context(), api.ChatRequest{DocumentID: id, Message: question, SessionID: session})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, resp.Response)
			for _, ref := range resp.Timestamps {
				fmt.Fprintf(out, "  [%s] %s\n", ref.FormattedTime, ref.Content)
			}
			if resp.SessionID != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", resp.SessionID)
			}
			return nil
		},
	}
	ask.Flags().StringVar(&session, "session", "", "continue a previous chat session")
	return ask
}

func mcpCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the document tools to MCP clients over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, *cfgPath, false)
			if err != nil {
				return err
			}
			defer e.Close()

			return mcpserver.New(e.client, version, e.logger).ServeStdio()
		},
	}
}
