package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prayatna/fraudscreen/backend/internal/storage"
	"github.com/prayatna/fraudscreen/backend/internal/util"
	"github.com/prayatna/fraudscreen/backend/pkg/leaselock"
	"github.com/prayatna/fraudscreen/backend/pkg/logger"
	"github.com/prayatna/fraudscreen/backend/pkg/pipeline"
	"github.com/prayatna/fraudscreen/backend/pkg/store"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
)

// ScreenDocumentMsg is the payload published for each uploaded document.
type ScreenDocumentMsg struct {
	DocumentID string `json:"document_id"`
	FileKey    string `json:"file_key"`
}

// ProcessScreenMessage handles one screening job: it fetches the document,
// runs the pipeline under a per-document lease, registers the extracted
// record and initializes the case. A returned error sends the message to
// the retry queue.
func ProcessScreenMessage(
	ctx context.Context,
	s3Client *awss3.Client,
	orch *pipeline.Orchestrator,
	locks *leaselock.Client,
	cases store.CaseStore,
	records store.RecordStore,
	msg string,
) error {
	data := new(ScreenDocumentMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return fmt.Errorf("failed to unmarshal screen message: %w", err)
	}
	if data.DocumentID == "" || data.FileKey == "" {
		return fmt.Errorf("screen message is missing document_id or file_key")
	}

	document, err := util.Retry(3, func() ([]byte, error) {
		return storage.GetDocument(ctx, s3Client, data.FileKey)
	})
	if err != nil {
		return err
	}

	lockKey := "document:" + data.DocumentID
	return locks.WithLease(ctx, lockKey, leaselock.Options{
		TTL:  2 * time.Minute,
		Wait: false,
	}, func(ctx context.Context) error {
		res, err := orch.Run(ctx, data.DocumentID, document)
		if err != nil {
			return err
		}

		if res.Record != nil {
			saveRecord := func(ctx context.Context) error {
				return records.SaveRecord(ctx, *res.Record)
			}
			if err := util.RetryErrWithContext(ctx, 3, saveRecord); err != nil {
				return err
			}
		}

		c, created, err := cases.InitCase(ctx, res.Seed())
		if err != nil {
			return err
		}
		if !created {
			logger.Info("[Queue] Case already initialized", "documentId", data.DocumentID, "caseId", c.ID)
			return nil
		}

		logger.Info("[Queue] Screening complete",
			"documentId", data.DocumentID,
			"caseId", c.ID,
			"beneficiaryId", c.BeneficiaryID,
		)
		return nil
	})
}
