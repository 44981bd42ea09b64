// Package kinesis converts DynamoDB ledger-table change records, delivered
// through a Kinesis data stream, into before/after ledger entries.
package kinesis

import (
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/example/stock-ledger/internal/infrastructure/store"
	"github.com/pkg/errors"
)

const (
	eventInsert = "INSERT"
	eventModify = "MODIFY"
)

// LedgerChange is one ledger-table write. Old is nil for inserted entries.
type LedgerChange struct {
	EventName string
	Old       *store.LedgerEntry
	New       *store.LedgerEntry
}

// Inserted reports whether the change created the entry.
func (c *LedgerChange) Inserted() bool {
	return c.EventName == eventInsert
}

// ConvertFromKinesisRecord converts a Kinesis record (DynamoDB Streams format)
// into a LedgerChange. REMOVE records yield nil since ledger entries are never deleted.
func ConvertFromKinesisRecord(record events.KinesisEventRecord) (*LedgerChange, error) {
	var dynamoDBRecord events.DynamoDBEventRecord
	if err := json.Unmarshal(record.Kinesis.Data, &dynamoDBRecord); err != nil {
		return nil, errors.Wrap(err, "unmarshal DynamoDB record")
	}
	return ConvertFromDynamoDBStreamRecord(dynamoDBRecord)
}

// ConvertFromDynamoDBStreamRecord converts a DynamoDB Stream record into a LedgerChange.
func ConvertFromDynamoDBStreamRecord(record events.DynamoDBEventRecord) (*LedgerChange, error) {
	if record.EventName != eventInsert && record.EventName != eventModify {
		return nil, nil
	}

	change := &LedgerChange{EventName: record.EventName}

	var err error
	if change.New, err = convertLedgerImage(record.Change.NewImage); err != nil {
		return nil, errors.Wrap(err, "new image")
	}
	if record.EventName == eventModify {
		if change.Old, err = convertLedgerImage(record.Change.OldImage); err != nil {
			return nil, errors.Wrap(err, "old image")
		}
	}
	return change, nil
}

// convertLedgerImage reads a stream image laid out as store.DynamoLedgerItem.
func convertLedgerImage(image map[string]events.DynamoDBAttributeValue) (*store.LedgerEntry, error) {
	if image == nil {
		return nil, fmt.Errorf("DynamoDB image is nil")
	}

	var (
		item store.DynamoLedgerItem
		err  error
	)
	if item.ProductID, err = numberField(image, "product_id"); err != nil {
		return nil, err
	}
	if item.WarehouseID, err = numberField(image, "warehouse_id"); err != nil {
		return nil, err
	}
	if item.ProductID <= 0 || item.WarehouseID <= 0 {
		return nil, fmt.Errorf("missing key fields: product_id=%d, warehouse_id=%d", item.ProductID, item.WarehouseID)
	}

	total, err := numberField(image, "total_quantity")
	if err != nil {
		return nil, err
	}
	reserved, err := numberField(image, "reserved_quantity")
	if err != nil {
		return nil, err
	}
	item.TotalQuantity = int(total)
	item.ReservedQuantity = int(reserved)
	if item.Version, err = numberField(image, "version"); err != nil {
		return nil, err
	}

	item.Status = stringField(image, "status")
	item.CreatedAt = stringField(image, "created_at")
	item.UpdatedAt = stringField(image, "updated_at")
	if v, ok := image["deactivated"]; ok && v.DataType() == events.DataTypeBoolean {
		item.Deactivated = v.Boolean()
	}
	if v, ok := image["metadata"]; ok && v.DataType() == events.DataTypeMap {
		item.Metadata = make(map[string]string)
		for k, attr := range v.Map() {
			if attr.DataType() == events.DataTypeString {
				item.Metadata[k] = attr.String()
			}
		}
	}

	return item.ToEntry()
}

// numberField returns zero for an absent attribute. The accessors on
// DynamoDBAttributeValue panic on a type mismatch, so the type is checked first.
func numberField(image map[string]events.DynamoDBAttributeValue, name string) (int64, error) {
	v, ok := image[name]
	if !ok {
		return 0, nil
	}
	if v.DataType() != events.DataTypeNumber {
		return 0, fmt.Errorf("%s is not a number", name)
	}
	n, err := v.Integer()
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", name)
	}
	return n, nil
}

func stringField(image map[string]events.DynamoDBAttributeValue, name string) string {
	if v, ok := image[name]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

// BatchConvertFromKinesisEvent converts all records from a Kinesis event.
// Returns successfully converted changes and any errors encountered.
func BatchConvertFromKinesisEvent(kinesisEvent events.KinesisEvent) ([]*LedgerChange, []error) {
	var changes []*LedgerChange
	var errs []error

	for _, record := range kinesisEvent.Records {
		change, err := ConvertFromKinesisRecord(record)
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "record %s", record.EventID))
			continue
		}
		if change != nil {
			changes = append(changes, change)
		}
	}

	return changes, errs
}
