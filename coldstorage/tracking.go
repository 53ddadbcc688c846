package coldstorage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// maxBatchWriteItems is the DynamoDB limit on requests per BatchWriteItem call.
const maxBatchWriteItems = 25

// TrackingStore is the DynamoDB table of export tasks not yet seen in a terminal state.
type TrackingStore struct {
	client DynamoDBAPI
	table  string
}

func NewTrackingStore(client DynamoDBAPI, table string) *TrackingStore {
	return &TrackingStore{client: client, table: table}
}

// Put writes all records. Unprocessed items are reported as an error rather than retried.
func (t *TrackingStore) Put(ctx context.Context, records []ExportTaskRecord) error {
	requests := make([]types.WriteRequest, 0, len(records))
	for _, record := range records {
		item, err := attributevalue.MarshalMap(record)
		if err != nil {
			return fmt.Errorf("failed to marshal tracking record %s: %w", record.ExportTaskID, err)
		}
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}

	return t.batchWrite(ctx, requests)
}

// Delete removes the records with the given export task ids. Ids that are not in the table are ignored.
func (t *TrackingStore) Delete(ctx context.Context, ids []string) error {
	requests := make([]types.WriteRequest, 0, len(ids))
	for _, id := range ids {
		requests = append(requests, types.WriteRequest{DeleteRequest: &types.DeleteRequest{
			Key: map[string]types.AttributeValue{
				"ExportTaskId": &types.AttributeValueMemberS{Value: id},
			},
		}})
	}

	return t.batchWrite(ctx, requests)
}

func (t *TrackingStore) batchWrite(ctx context.Context, requests []types.WriteRequest) error {
	for start := 0; start < len(requests); start += maxBatchWriteItems {
		end := min(start+maxBatchWriteItems, len(requests))

		out, err := t.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{t.table: requests[start:end]},
		})
		if err != nil {
			return fmt.Errorf("failed to batch write to %s: %w", t.table, err)
		}
		if unprocessed := len(out.UnprocessedItems[t.table]); unprocessed > 0 {
			return fmt.Errorf("batch write to %s left %d unprocessed items", t.table, unprocessed)
		}
	}

	return nil
}

// Scan returns every record in the table. Reads are strongly consistent so a scan right after a
// delete sees the delete.
func (t *TrackingStore) Scan(ctx context.Context) ([]ExportTaskRecord, error) {
	var records []ExportTaskRecord
	paginator := dynamodb.NewScanPaginator(t.client, &dynamodb.ScanInput{
		TableName:      aws.String(t.table),
		ConsistentRead: aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", t.table, err)
		}

		var pageRecords []ExportTaskRecord
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &pageRecords); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tracking records: %w", err)
		}
		records = append(records, pageRecords...)
	}

	return records, nil
}
