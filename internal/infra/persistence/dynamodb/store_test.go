package dynamodb

import (
	"bloodsync/internal/infra/persistence/memory"
	"bloodsync/pkg/domain"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTable struct {
	key   string
	items map[string]map[string]any
}

// mockDynamo speaks the subset of the DynamoDB JSON protocol used by the
// store. Scans return one item per page to exercise pagination.
type mockDynamo struct {
	mu            sync.Mutex
	tables        map[string]*mockTable
	createInputs  []map[string]any
	transactCalls int
	failTransact  bool
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{tables: make(map[string]*mockTable)}
}

func (m *mockDynamo) addTable(name, key string) {
	m.tables[name] = &mockTable{key: key, items: make(map[string]map[string]any)}
}

func jsonResponse(status int, body any) *http.Response {
	raw, _ := json.Marshal(body)
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": {"application/x-amz-json-1.0"}},
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}
}

func awsError(kind, msg string) *http.Response {
	return jsonResponse(http.StatusBadRequest, map[string]string{
		"__type":  "com.amazonaws.dynamodb.v20120810#" + kind,
		"message": msg,
	})
}

func keyValue(item map[string]any, key string) string {
	attr, _ := item[key].(map[string]any)
	s, _ := attr["S"].(string)
	return s
}

func (m *mockDynamo) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var in map[string]any
	if req.Body != nil {
		raw, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(raw, &in)
	}
	op := strings.TrimPrefix(req.Header.Get("X-Amz-Target"), "DynamoDB_20120810.")
	name, _ := in["TableName"].(string)
	switch op {
	case "CreateTable":
		m.createInputs = append(m.createInputs, in)
		if _, ok := m.tables[name]; ok {
			return awsError("ResourceInUseException", "table exists"), nil
		}
		schema := in["KeySchema"].([]any)[0].(map[string]any)
		m.addTable(name, schema["AttributeName"].(string))
		return jsonResponse(http.StatusOK, map[string]any{"TableDescription": map[string]any{"TableName": name, "TableStatus": "CREATING"}}), nil
	case "DescribeTable":
		if _, ok := m.tables[name]; !ok {
			return awsError("ResourceNotFoundException", "missing table"), nil
		}
		return jsonResponse(http.StatusOK, map[string]any{"Table": map[string]any{"TableName": name, "TableStatus": "ACTIVE"}}), nil
	case "Scan":
		return m.scan(name, in), nil
	case "TransactWriteItems":
		return m.transact(in), nil
	}
	return awsError("UnknownOperationException", op), nil
}

func (m *mockDynamo) scan(name string, in map[string]any) *http.Response {
	table, ok := m.tables[name]
	if !ok {
		return awsError("ResourceNotFoundException", "missing table")
	}
	ids := make([]string, 0, len(table.items))
	for id := range table.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	start := 0
	if startKey, ok := in["ExclusiveStartKey"].(map[string]any); ok {
		after := keyValue(startKey, table.key)
		start = sort.SearchStrings(ids, after) + 1
	}
	out := map[string]any{"Items": []any{}, "Count": 0}
	if start < len(ids) {
		item := table.items[ids[start]]
		out["Items"] = []any{item}
		out["Count"] = 1
		if start+1 < len(ids) {
			out["LastEvaluatedKey"] = map[string]any{table.key: item[table.key]}
		}
	}
	return jsonResponse(http.StatusOK, out)
}

func (m *mockDynamo) transact(in map[string]any) *http.Response {
	m.transactCalls++
	if m.failTransact {
		return awsError("ValidationException", "write rejected")
	}
	for _, raw := range in["TransactItems"].([]any) {
		entry := raw.(map[string]any)
		if put, ok := entry["Put"].(map[string]any); ok {
			table := m.tables[put["TableName"].(string)]
			item := put["Item"].(map[string]any)
			table.items[keyValue(item, table.key)] = item
		}
		if del, ok := entry["Delete"].(map[string]any); ok {
			table := m.tables[del["TableName"].(string)]
			delete(table.items, keyValue(del["Key"].(map[string]any), table.key))
		}
	}
	return jsonResponse(http.StatusOK, map[string]any{})
}

func newMockClient(t *testing.T, rt http.RoundTripper) *dynamodb.Client {
	t.Helper()
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("ap-south-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	require.NoError(t, err)
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		o.BaseEndpoint = aws.String("https://mock.dynamodb.local")
		o.HTTPClient = &http.Client{Transport: rt}
	})
}

var fixedNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func openMock(t *testing.T, client *dynamodb.Client) *Store {
	t.Helper()
	store, err := openWithClient(context.Background(), client, Config{}, nil, memory.WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return store
}

func TestTablesUsePrefix(t *testing.T) {
	tables := Tables("Test_")
	require.Len(t, tables, 6)
	assert.Equal(t, Table{Bucket: memory.BucketDonors, Name: "Test_Donors", Key: "donor_id"}, tables[0])
	assert.Equal(t, Table{Bucket: memory.BucketInventory, Name: "Test_Inventory", Key: "blood_group"}, tables[3])
}

func TestEnsureTablesCreatesMissingTables(t *testing.T) {
	mock := newMockDynamo()
	mock.addTable("BloodSync_Donors", "donor_id")
	client := newMockClient(t, mock)

	created, err := EnsureTables(context.Background(), client, Config{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"BloodSync_Requestors", "BloodSync_Requests", "BloodSync_Inventory",
		"BloodSync_Assignments", "BloodSync_Donations",
	}, created)
	require.Len(t, mock.createInputs, 6)
	first := mock.createInputs[1]
	assert.Equal(t, "PAY_PER_REQUEST", first["BillingMode"])
	schema := first["KeySchema"].([]any)[0].(map[string]any)
	assert.Equal(t, "requestor_id", schema["AttributeName"])
	assert.Equal(t, "HASH", schema["KeyType"])

	created, err = EnsureTables(context.Background(), client, Config{})
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestStorePersistsAndHydrates(t *testing.T) {
	mock := newMockDynamo()
	client := newMockClient(t, mock)
	_, err := EnsureTables(context.Background(), client, Config{})
	require.NoError(t, err)

	store := openMock(t, client)
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		for _, id := range []string{"DON-1", "DON-2", "DON-3"} {
			if _, err := tx.CreateDonor(domain.Donor{Base: domain.Base{ID: id}, Name: "Donor " + id, BloodGroup: domain.ONegative, Age: 30, WeightKg: 61.5, Available: true}); err != nil {
				return err
			}
		}
		if _, err := tx.SetInventory(domain.OPositive, 5); err != nil {
			return err
		}
		_, err := tx.SetInventory(domain.OPositive, 12)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, mock.transactCalls)

	inventory := mock.tables["BloodSync_Inventory"].items["O+"]
	require.NotNil(t, inventory)
	assert.Equal(t, map[string]any{"N": "12"}, inventory["units"])
	donor := mock.tables["BloodSync_Donors"].items["DON-2"]
	assert.Equal(t, map[string]any{"S": "Donor DON-2"}, donor["name"])
	assert.Equal(t, map[string]any{"S": "DON-2"}, donor["donor_id"])

	reopened := openMock(t, client)
	assert.Len(t, reopened.ListDonors(), 3)
	got, ok := reopened.GetDonor("DON-3")
	require.True(t, ok)
	assert.Equal(t, "Donor DON-3", got.Name)
	assert.InDelta(t, 61.5, got.WeightKg, 0.001)
	assert.True(t, got.CreatedAt.Equal(fixedNow))
	assert.Equal(t, 12, reopened.InventoryUnits(domain.OPositive))
	entries := reopened.ListInventory()
	require.Len(t, entries, 1)
	assert.Equal(t, domain.OPositive, entries[0].BloodGroup)
}

func TestStoreCommitFailureKeepsPreviousState(t *testing.T) {
	mock := newMockDynamo()
	client := newMockClient(t, mock)
	_, err := EnsureTables(context.Background(), client, Config{})
	require.NoError(t, err)
	store := openMock(t, client)

	mock.failTransact = true
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.SetInventory(domain.ABNegative, 9)
		return err
	})
	require.ErrorIs(t, err, domain.ErrBackendUnavailable)
	var backend domain.BackendUnavailableError
	require.ErrorAs(t, err, &backend)
	assert.Equal(t, "dynamodb", backend.Backend)
	assert.Equal(t, 0, store.InventoryUnits(domain.ABNegative))
	assert.Empty(t, mock.tables["BloodSync_Inventory"].items)
}

func TestOpenFailsWhenTablesMissing(t *testing.T) {
	client := newMockClient(t, newMockDynamo())
	_, err := openWithClient(context.Background(), client, Config{}, nil)
	require.ErrorIs(t, err, domain.ErrBackendUnavailable)
	var notFound *types.ResourceNotFoundException
	assert.ErrorAs(t, err, &notFound)
}

func TestDecodeItemRequiresKey(t *testing.T) {
	table := Table{Bucket: memory.BucketDonors, Name: "BloodSync_Donors", Key: "donor_id"}
	_, err := decodeItem(table, map[string]types.AttributeValue{"name": &types.AttributeValueMemberS{Value: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing key donor_id")
}

func TestEncodeItemAddsKey(t *testing.T) {
	table := Table{Bucket: memory.BucketRequests, Name: "BloodSync_Requests", Key: "request_id"}
	item, err := encodeItem(table, "BR-1", []byte(`{"units_needed":3,"patient_name":"R","matched_donor_ids":["DON-1"]}`))
	require.NoError(t, err)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "BR-1"}, item["request_id"])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "3"}, item["units_needed"])
	list, ok := item["matched_donor_ids"].(*types.AttributeValueMemberL)
	require.True(t, ok)
	assert.Len(t, list.Value, 1)

	_, err = encodeItem(table, "BR-2", []byte(`{`))
	assert.Error(t, err)
}
