package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/policyrag/internal/extract"
	"github.com/xxxsen/policyrag/internal/ingest"
)

// newIngestCmd indexes one local file synchronously, bypassing the queue.
func newIngestCmd(load loader) *cobra.Command {
	var tenantID, docID, userID, file, contentType string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "ingest one local file now",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			app, err := load(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			if docID == "" {
				docID = uuid.NewString()
			}
			fetch := ingest.FetcherFunc(func(context.Context, string) ([]byte, error) {
				return data, nil
			})
			p, err := ingest.New(fetch, app.Extractor, app.Chunker, app.Embedder, app.Index)
			if err != nil {
				return err
			}
			res, err := p.Ingest(ctx, ingest.Request{
				TenantID:    tenantID,
				DocID:       docID,
				UserID:      userID,
				Locator:     "file://" + filepath.ToSlash(file),
				ContentType: extract.DetectContentType(file, contentType),
				Metadata:    map[string]string{"source": "cli"},
			})
			if err != nil {
				return err
			}
			logutil.GetLogger(ctx).Info("document ingested",
				zap.String("doc_id", res.DocID),
				zap.Int("chunks", res.ChunkCount),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "doc_id=%s chunks=%d\n", res.DocID, res.ChunkCount)
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&docID, "doc", "", "document id, random when empty")
	cmd.Flags().StringVar(&userID, "user", "cli", "uploader user id")
	cmd.Flags().StringVar(&file, "file", "", "path of the document")
	cmd.Flags().StringVar(&contentType, "content-type", "", "content type, detected from the extension when empty")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
