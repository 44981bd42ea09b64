package store

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pkg/errors"
)

// WarehouseIndexName is the GSI (partition key warehouse_id) used for per-warehouse listings.
const WarehouseIndexName = "warehouse_id-index"

// DynamoAPI is the subset of the DynamoDB client used by the ledger store.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoLedgerStore stores ledger entries in DynamoDB (partition key product_id,
// sort key warehouse_id). Writes are conditional on the stored version.
// Table changes can be streamed to Kinesis for the alerting Lambda.
type DynamoLedgerStore struct {
	client    DynamoAPI
	tableName string
}

// DynamoLedgerItem is the DynamoDB item layout, shared with the Kinesis adapter.
type DynamoLedgerItem struct {
	ProductID         int64             `dynamodbav:"product_id"`
	WarehouseID       int64             `dynamodbav:"warehouse_id"`
	TotalQuantity     int               `dynamodbav:"total_quantity"`
	ReservedQuantity  int               `dynamodbav:"reserved_quantity"`
	AvailableQuantity int               `dynamodbav:"available_quantity"`
	Status            string            `dynamodbav:"status"`
	Deactivated       bool              `dynamodbav:"deactivated"`
	Metadata          map[string]string `dynamodbav:"metadata,omitempty"`
	CreatedAt         string            `dynamodbav:"created_at"`
	UpdatedAt         string            `dynamodbav:"updated_at"`
	Version           int64             `dynamodbav:"version"`
}

func NewDynamoLedgerStore(client DynamoAPI, tableName string) *DynamoLedgerStore {
	return &DynamoLedgerStore{
		client:    client,
		tableName: tableName,
	}
}

func (s *DynamoLedgerStore) Get(ctx context.Context, productID, warehouseID int64) (*LedgerEntry, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            ledgerItemKey(productID, warehouseID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "get ledger item %d/%d", productID, warehouseID)
	}
	if len(out.Item) == 0 {
		return nil, ErrEntryNotFound
	}
	return unmarshalLedgerItem(out.Item)
}

func (s *DynamoLedgerStore) Insert(ctx context.Context, entry *LedgerEntry) error {
	av, err := marshalLedgerItem(entry)
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(product_id)"),
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return ErrEntryExists
	}
	return errors.Wrap(err, "put ledger item")
}

func (s *DynamoLedgerStore) CompareAndSwap(ctx context.Context, entry *LedgerEntry, expectedVersion int64) error {
	av, err := marshalLedgerItem(entry)
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("version = :expected"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(expectedVersion, 10)},
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		if len(ccf.Item) == 0 {
			return ErrEntryNotFound
		}
		return ErrVersionConflict
	}
	return errors.Wrap(err, "swap ledger item")
}

func (s *DynamoLedgerStore) ListByProduct(ctx context.Context, productID int64) ([]*LedgerEntry, error) {
	return s.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("product_id = :pid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pid": numberAttr(productID),
		},
	})
}

func (s *DynamoLedgerStore) ListByWarehouse(ctx context.Context, warehouseID int64) ([]*LedgerEntry, error) {
	return s.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(WarehouseIndexName),
		KeyConditionExpression: aws.String("warehouse_id = :wid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":wid": numberAttr(warehouseID),
		},
	})
}

func (s *DynamoLedgerStore) ListAvailableBelow(ctx context.Context, threshold int) ([]*LedgerEntry, error) {
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:        aws.String(s.tableName),
		FilterExpression: aws.String("available_quantity < :t AND deactivated = :f"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberN{Value: strconv.Itoa(threshold)},
			":f": &types.AttributeValueMemberBOOL{Value: false},
		},
	})

	var entries []*LedgerEntry
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "scan ledger items")
		}
		batch, err := unmarshalLedgerItems(page.Items)
		if err != nil {
			return nil, err
		}
		entries = append(entries, batch...)
	}
	sortLedgerEntries(entries)
	return entries, nil
}

func (s *DynamoLedgerStore) query(ctx context.Context, input *dynamodb.QueryInput) ([]*LedgerEntry, error) {
	paginator := dynamodb.NewQueryPaginator(s.client, input)

	var entries []*LedgerEntry
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "query ledger items")
		}
		batch, err := unmarshalLedgerItems(page.Items)
		if err != nil {
			return nil, err
		}
		entries = append(entries, batch...)
	}
	sortLedgerEntries(entries)
	return entries, nil
}

func ledgerItemKey(productID, warehouseID int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"product_id":   numberAttr(productID),
		"warehouse_id": numberAttr(warehouseID),
	}
}

func numberAttr(v int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
}

func marshalLedgerItem(e *LedgerEntry) (map[string]types.AttributeValue, error) {
	item := DynamoLedgerItem{
		ProductID:         e.ProductID,
		WarehouseID:       e.WarehouseID,
		TotalQuantity:     e.TotalQuantity,
		ReservedQuantity:  e.ReservedQuantity,
		AvailableQuantity: e.Available(),
		Status:            e.Status,
		Deactivated:       e.Deactivated,
		Metadata:          e.Metadata,
		CreatedAt:         e.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:         e.UpdatedAt.Format(time.RFC3339Nano),
		Version:           e.Version,
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, errors.Wrap(err, "marshal ledger item")
	}
	return av, nil
}

func unmarshalLedgerItem(av map[string]types.AttributeValue) (*LedgerEntry, error) {
	var item DynamoLedgerItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, errors.Wrap(err, "unmarshal ledger item")
	}
	return item.ToEntry()
}

func unmarshalLedgerItems(items []map[string]types.AttributeValue) ([]*LedgerEntry, error) {
	entries := make([]*LedgerEntry, 0, len(items))
	for _, av := range items {
		e, err := unmarshalLedgerItem(av)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ToEntry converts the item into a LedgerEntry, parsing its timestamps.
func (item DynamoLedgerItem) ToEntry() (*LedgerEntry, error) {
	e := &LedgerEntry{
		ProductID:        item.ProductID,
		WarehouseID:      item.WarehouseID,
		TotalQuantity:    item.TotalQuantity,
		ReservedQuantity: item.ReservedQuantity,
		Status:           item.Status,
		Deactivated:      item.Deactivated,
		Metadata:         item.Metadata,
		Version:          item.Version,
	}
	var err error
	if item.CreatedAt != "" {
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, item.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "parse created_at")
		}
	}
	if item.UpdatedAt != "" {
		if e.UpdatedAt, err = time.Parse(time.RFC3339Nano, item.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "parse updated_at")
		}
	}
	return e, nil
}

func sortLedgerEntries(entries []*LedgerEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ProductID != entries[j].ProductID {
			return entries[i].ProductID < entries[j].ProductID
		}
		return entries[i].WarehouseID < entries[j].WarehouseID
	})
}
