package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLedgerTopics(t *testing.T) {
	configs := LedgerTopics(3, ".dlt",
		[]string{"stock.changed"},
		[]string{"inventory.low"},
		[]string{"order.stock.adjust"},
	)

	partitions := make(map[string]int)
	for _, c := range configs {
		assert.Equal(t, 3, c.ReplicationFactor, c.Topic)
		partitions[c.Topic] = c.NumPartitions
	}

	assert.Equal(t, map[string]int{
		"stock.changed":          StockChangedPartitions,
		"stock.changed.dlt":      1,
		"inventory.low":          DefaultPartitions,
		"inventory.low.dlt":      1,
		"order.stock.adjust":     DefaultPartitions,
		"order.stock.adjust.dlt": 1,
	}, partitions)
}

func TestLedgerTopics_NoDeadLetterSuffix(t *testing.T) {
	configs := LedgerTopics(1, "", []string{"stock.changed"}, []string{"inventory.low"}, nil)

	var names []string
	for _, c := range configs {
		names = append(names, c.Topic)
	}
	assert.Equal(t, []string{"stock.changed", "inventory.low"}, names)
}
