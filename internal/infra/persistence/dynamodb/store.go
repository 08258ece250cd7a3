// Package dynamodb persists the store to one DynamoDB table per entity.
// Transactions run against the in-memory engine; each commit is written with
// TransactWriteItems before the new state becomes visible.
package dynamodb

import (
	"bloodsync/internal/infra/persistence/memory"
	"bloodsync/pkg/domain"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	backendName        = "dynamodb"
	defaultRegion      = "ap-south-1"
	defaultTablePrefix = "BloodSync_"
	// maxTransactItems is the DynamoDB limit for a single TransactWriteItems call.
	maxTransactItems = 100
)

// Config describes the DynamoDB connection and table naming.
type Config struct {
	Region          string
	Endpoint        string // optional; DynamoDB Local or LocalStack
	TablePrefix     string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	// WaitTimeout bounds EnsureTables; zero means one minute.
	WaitTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Region == "" {
		c.Region = defaultRegion
	}
	if c.TablePrefix == "" {
		c.TablePrefix = defaultTablePrefix
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = time.Minute
	}
	return c
}

// Table binds a bucket to its DynamoDB table and hash key attribute.
type Table struct {
	Bucket string
	Name   string
	Key    string
}

var tableLayout = []struct {
	bucket string
	suffix string
	key    string
}{
	{memory.BucketDonors, "Donors", "donor_id"},
	{memory.BucketRequestors, "Requestors", "requestor_id"},
	{memory.BucketRequests, "Requests", "request_id"},
	{memory.BucketInventory, "Inventory", "blood_group"},
	{memory.BucketAssignments, "Assignments", "assignment_id"},
	{memory.BucketDonations, "Donations", "donation_id"},
}

// Tables returns the table layout for prefix.
func Tables(prefix string) []Table {
	out := make([]Table, 0, len(tableLayout))
	for _, l := range tableLayout {
		out = append(out, Table{Bucket: l.bucket, Name: prefix + l.suffix, Key: l.key})
	}
	return out
}

// Store persists state to DynamoDB while reusing the in-memory implementation
// for transactions.
type Store struct {
	*memory.Store
	client *dynamodb.Client
	tables map[string]Table
}

// NewClient builds a DynamoDB client from cfg. Credentials fall back to the
// default AWS chain when the static keys are empty.
func NewClient(ctx context.Context, cfg Config) (*dynamodb.Client, error) {
	cfg = cfg.withDefaults()
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// Open connects to DynamoDB and hydrates the in-memory state from every table.
// Tables must already exist; see EnsureTables.
func Open(ctx context.Context, cfg Config, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, unavailable("connect", err)
	}
	return openWithClient(ctx, client, cfg, engine, opts...)
}

func openWithClient(ctx context.Context, client *dynamodb.Client, cfg Config, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	cfg = cfg.withDefaults()
	s := &Store{client: client, tables: make(map[string]Table)}
	for _, t := range Tables(cfg.TablePrefix) {
		s.tables[t.Bucket] = t
	}
	snapshot, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.Store = memory.NewStore(engine, slices.Concat(opts, []memory.Option{memory.WithCommitHook(s.persist)})...)
	s.ImportState(snapshot)
	return s, nil
}

// Client exposes the underlying DynamoDB client.
func (s *Store) Client() *dynamodb.Client { return s.client }

func (s *Store) orderedTables() []Table {
	out := make([]Table, 0, len(s.tables))
	for _, bucket := range memory.Buckets {
		out = append(out, s.tables[bucket])
	}
	return out
}

type loaded struct {
	id      string
	payload []byte
}

// load scans every table concurrently and decodes the items into a snapshot.
func (s *Store) load(ctx context.Context) (memory.Snapshot, error) {
	var mu sync.Mutex
	results := make(map[string][]loaded, len(s.tables))
	g, gctx := errgroup.WithContext(ctx)
	for _, table := range s.orderedTables() {
		g.Go(func() error {
			items, err := scanTable(gctx, s.client, table)
			if err != nil {
				return err
			}
			mu.Lock()
			results[table.Bucket] = items
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return memory.Snapshot{}, err
	}
	snapshot := memory.NewSnapshot()
	for _, bucket := range memory.Buckets {
		for _, item := range results[bucket] {
			if err := snapshot.Apply(bucket, item.id, item.payload); err != nil {
				return memory.Snapshot{}, fmt.Errorf("load records: %w", err)
			}
		}
	}
	return snapshot, nil
}

func scanTable(ctx context.Context, client *dynamodb.Client, table Table) ([]loaded, error) {
	var out []loaded
	pager := dynamodb.NewScanPaginator(client, &dynamodb.ScanInput{TableName: aws.String(table.Name)})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, unavailable("scan "+table.Name, err)
		}
		for _, item := range page.Items {
			rec, err := decodeItem(table, item)
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

// decodeItem turns a native DynamoDB item back into the entity's JSON payload.
func decodeItem(table Table, item map[string]types.AttributeValue) (loaded, error) {
	var fields map[string]any
	if err := attributevalue.UnmarshalMap(item, &fields); err != nil {
		return loaded{}, fmt.Errorf("decode %s item: %w", table.Name, err)
	}
	id, _ := fields[table.Key].(string)
	if id == "" {
		return loaded{}, fmt.Errorf("decode %s item: missing key %s", table.Name, table.Key)
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return loaded{}, fmt.Errorf("decode %s %s: %w", table.Name, id, err)
	}
	return loaded{id: id, payload: payload}, nil
}

// encodeItem stores the entity's JSON fields as native attributes plus the
// table's hash key.
func encodeItem(table Table, id string, payload []byte) (map[string]types.AttributeValue, error) {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("encode %s %s: %w", table.Name, id, err)
	}
	fields[table.Key] = id
	item, err := attributevalue.MarshalMap(fields)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s: %w", table.Name, id, err)
	}
	return item, nil
}

func (s *Store) writeItem(rec memory.Record) (types.TransactWriteItem, error) {
	table, ok := s.tables[rec.Bucket]
	if !ok {
		return types.TransactWriteItem{}, fmt.Errorf("no table for bucket %s", rec.Bucket)
	}
	if rec.Deleted {
		return types.TransactWriteItem{Delete: &types.Delete{
			TableName: aws.String(table.Name),
			Key:       map[string]types.AttributeValue{table.Key: &types.AttributeValueMemberS{Value: rec.ID}},
		}}, nil
	}
	item, err := encodeItem(table, rec.ID, rec.Payload)
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	return types.TransactWriteItem{Put: &types.Put{TableName: aws.String(table.Name), Item: item}}, nil
}

// persist writes the change set through TransactWriteItems. Change sets larger
// than one DynamoDB transaction are split and are only atomic per chunk.
func (s *Store) persist(ctx context.Context, changes []memory.Change) error {
	records, err := memory.RecordsFromChanges(changes)
	if err != nil {
		return err
	}
	items := make([]types.TransactWriteItem, 0, len(records))
	for _, rec := range records {
		item, err := s.writeItem(rec)
		if err != nil {
			return err
		}
		items = append(items, item)
	}
	for chunk := range slices.Chunk(items, maxTransactItems) {
		if _, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: chunk}); err != nil {
			return unavailable("transact write", err)
		}
	}
	return nil
}

// EnsureTables creates any missing table with on-demand billing and waits
// until every table is active.
func EnsureTables(ctx context.Context, client *dynamodb.Client, cfg Config) ([]string, error) {
	cfg = cfg.withDefaults()
	var created []string
	for _, table := range Tables(cfg.TablePrefix) {
		_, err := client.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName:            aws.String(table.Name),
			AttributeDefinitions: []types.AttributeDefinition{{AttributeName: aws.String(table.Key), AttributeType: types.ScalarAttributeTypeS}},
			KeySchema:            []types.KeySchemaElement{{AttributeName: aws.String(table.Key), KeyType: types.KeyTypeHash}},
			BillingMode:          types.BillingModePayPerRequest,
		})
		var inUse *types.ResourceInUseException
		switch {
		case err == nil:
			created = append(created, table.Name)
		case errors.As(err, &inUse):
		default:
			return created, unavailable("create table "+table.Name, err)
		}
	}
	waiter := dynamodb.NewTableExistsWaiter(client, func(o *dynamodb.TableExistsWaiterOptions) {
		o.MinDelay = time.Second
		o.MaxDelay = 5 * time.Second
	})
	for _, table := range Tables(cfg.TablePrefix) {
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table.Name)}, cfg.WaitTimeout); err != nil {
			return created, unavailable("wait table "+table.Name, err)
		}
	}
	return created, nil
}

func unavailable(op string, err error) error {
	return domain.BackendUnavailableError{Backend: backendName, Op: op, Err: err}
}
