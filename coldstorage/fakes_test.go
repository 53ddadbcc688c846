package coldstorage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbTypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdsTypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/scheduler"
	schedulerTypes "github.com/aws/aws-sdk-go-v2/service/scheduler/types"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ses"
)

type fakeRDS struct {
	snapshotPages [][]rdsTypes.DBSnapshot
	snapshotErr   error
	startFailures map[string]error
	exportTasks   map[string]rdsTypes.ExportTask
	describeErr   error

	snapshotInputs []*rds.DescribeDBSnapshotsInput
	startInputs    []*rds.StartExportTaskInput
	describedIDs   []string
}

func (f *fakeRDS) DescribeDBSnapshots(_ context.Context, params *rds.DescribeDBSnapshotsInput, _ ...func(*rds.Options)) (*rds.DescribeDBSnapshotsOutput, error) {
	f.snapshotInputs = append(f.snapshotInputs, params)
	if f.snapshotErr != nil {
		return nil, f.snapshotErr
	}

	page := 0
	if params.Marker != nil {
		if _, err := fmt.Sscanf(*params.Marker, "page-%d", &page); err != nil {
			return nil, err
		}
	}

	out := &rds.DescribeDBSnapshotsOutput{}
	if page < len(f.snapshotPages) {
		out.DBSnapshots = f.snapshotPages[page]
	}
	if page+1 < len(f.snapshotPages) {
		out.Marker = aws.String(fmt.Sprintf("page-%d", page+1))
	}
	return out, nil
}

func (f *fakeRDS) StartExportTask(_ context.Context, params *rds.StartExportTaskInput, _ ...func(*rds.Options)) (*rds.StartExportTaskOutput, error) {
	f.startInputs = append(f.startInputs, params)
	if err := f.startFailures[aws.ToString(params.SourceArn)]; err != nil {
		return nil, err
	}
	return &rds.StartExportTaskOutput{
		ExportTaskIdentifier: params.ExportTaskIdentifier,
		SourceArn:            params.SourceArn,
		S3Bucket:             params.S3BucketName,
		S3Prefix:             params.S3Prefix,
		Status:               aws.String("STARTING"),
	}, nil
}

func (f *fakeRDS) DescribeExportTasks(_ context.Context, params *rds.DescribeExportTasksInput, _ ...func(*rds.Options)) (*rds.DescribeExportTasksOutput, error) {
	id := aws.ToString(params.ExportTaskIdentifier)
	f.describedIDs = append(f.describedIDs, id)
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	task, ok := f.exportTasks[id]
	if !ok {
		return &rds.DescribeExportTasksOutput{}, nil
	}
	return &rds.DescribeExportTasksOutput{ExportTasks: []rdsTypes.ExportTask{task}}, nil
}

func (f *fakeRDS) setStatus(id, status string) {
	if f.exportTasks == nil {
		f.exportTasks = map[string]rdsTypes.ExportTask{}
	}
	f.exportTasks[id] = rdsTypes.ExportTask{
		ExportTaskIdentifier: aws.String(id),
		Status:               aws.String(status),
		S3Bucket:             aws.String("cold-storage-bucket"),
		S3Prefix:             aws.String("10-1-2026/rds-backups"),
	}
}

// fakeDynamoDB keeps one table keyed by ExportTaskId.
type fakeDynamoDB struct {
	mu          sync.Mutex
	items       map[string]map[string]ddbTypes.AttributeValue
	batchCalls  int
	writeErr    error
	scanErr     error
	unprocessed bool
	scanInputs  []*dynamodb.ScanInput
}

func newFakeDynamoDB() *fakeDynamoDB {
	return &fakeDynamoDB{items: map[string]map[string]ddbTypes.AttributeValue{}}
}

func (f *fakeDynamoDB) BatchWriteItem(_ context.Context, params *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.batchCalls++
	if f.writeErr != nil {
		return nil, f.writeErr
	}

	out := &dynamodb.BatchWriteItemOutput{UnprocessedItems: map[string][]ddbTypes.WriteRequest{}}
	for table, requests := range params.RequestItems {
		if len(requests) > maxBatchWriteItems {
			return nil, errors.New("too many items in batch")
		}
		if f.unprocessed {
			out.UnprocessedItems[table] = requests[:1]
			requests = requests[1:]
		}
		for _, request := range requests {
			switch {
			case request.PutRequest != nil:
				key := request.PutRequest.Item["ExportTaskId"].(*ddbTypes.AttributeValueMemberS).Value
				f.items[key] = request.PutRequest.Item
			case request.DeleteRequest != nil:
				key := request.DeleteRequest.Key["ExportTaskId"].(*ddbTypes.AttributeValueMemberS).Value
				delete(f.items, key)
			}
		}
	}
	return out, nil
}

func (f *fakeDynamoDB) Scan(_ context.Context, params *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.scanInputs = append(f.scanInputs, params)
	if f.scanErr != nil {
		return nil, f.scanErr
	}

	keys := make([]string, 0, len(f.items))
	for key := range f.items {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := &dynamodb.ScanOutput{}
	for _, key := range keys {
		out.Items = append(out.Items, f.items[key])
	}
	out.Count = int32(len(out.Items))
	return out, nil
}

func (f *fakeDynamoDB) put(id, sourceArn string) {
	f.items[id] = map[string]ddbTypes.AttributeValue{
		"ExportTaskId": &ddbTypes.AttributeValueMemberS{Value: id},
		"SourceArn":    &ddbTypes.AttributeValueMemberS{Value: sourceArn},
	}
}

func (f *fakeDynamoDB) keys() []string {
	keys := make([]string, 0, len(f.items))
	for key := range f.items {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

type fakeScheduler struct {
	exists    bool
	createErr error
	deleteErr error

	createInputs []*scheduler.CreateScheduleInput
	deleteCalls  int
}

func (f *fakeScheduler) CreateSchedule(_ context.Context, params *scheduler.CreateScheduleInput, _ ...func(*scheduler.Options)) (*scheduler.CreateScheduleOutput, error) {
	f.createInputs = append(f.createInputs, params)
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.exists {
		return nil, &schedulerTypes.ConflictException{Message: aws.String("schedule already exists")}
	}
	f.exists = true
	return &scheduler.CreateScheduleOutput{ScheduleArn: aws.String("arn:aws:scheduler:us-east-1:123456789012:schedule/default/" + aws.ToString(params.Name))}, nil
}

func (f *fakeScheduler) DeleteSchedule(_ context.Context, _ *scheduler.DeleteScheduleInput, _ ...func(*scheduler.Options)) (*scheduler.DeleteScheduleOutput, error) {
	f.deleteCalls++
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	if !f.exists {
		return nil, &schedulerTypes.ResourceNotFoundException{Message: aws.String("schedule not found")}
	}
	f.exists = false
	return &scheduler.DeleteScheduleOutput{}, nil
}

type fakeS3 struct {
	err     error
	buckets []string
}

func (f *fakeS3) HeadBucket(_ context.Context, params *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	f.buckets = append(f.buckets, aws.ToString(params.Bucket))
	if f.err != nil {
		return nil, f.err
	}
	return &s3.HeadBucketOutput{}, nil
}

type fakeSecrets struct {
	value string
	err   error
	ids   []string
}

func (f *fakeSecrets) GetSecretValue(_ context.Context, params *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.ids = append(f.ids, aws.ToString(params.SecretId))
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(f.value)}, nil
}

type fakeSES struct {
	err    error
	inputs []*ses.SendEmailInput
}

func (f *fakeSES) SendEmail(_ context.Context, params *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("message-id")}, nil
}

type notification struct {
	title    string
	messages []string
}

type recordingNotifier struct {
	err  error
	sent []notification
}

func (r *recordingNotifier) Notify(_ context.Context, title string, messages []string) error {
	r.sent = append(r.sent, notification{title: title, messages: messages})
	return r.err
}
