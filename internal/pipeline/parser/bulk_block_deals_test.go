package parser_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/parser"
)

func TestParseBulkBlockDeals_HappyPath(t *testing.T) {
	csv := "SYMBOL,CLIENT_NAME,DEAL_TYPE,TRANSACTION_TYPE,QUANTITY,PRICE,REMARKS\n" +
		"TCS,Acme Fund,BULK,BUY,50000,3800.50,-\n" +
		"TCS,Acme Fund,BULK,SELL,20000,3801.00,-\n"

	date := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	result, err := parser.ParseBulkBlockDeals([]byte(csv), date, "v1", 1700000000000)
	require.NoError(t, err)
	defer result.Frame.Release()

	assert.Equal(t, 2, result.Frame.NumRows())

	dealType, ok := result.Frame.StringAt("deal_type", 0)
	assert.True(t, ok)
	assert.Equal(t, "BULK", dealType)

	txType, ok := result.Frame.StringAt("transaction_type", 1)
	assert.True(t, ok)
	assert.Equal(t, "SELL", txType)
}

func TestParseBulkBlockDeals_SchemaDrift(t *testing.T) {
	csv := "SYMBOL\nTCS\n"
	date := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	_, err := parser.ParseBulkBlockDeals([]byte(csv), date, "v1", 1700000000000)
	assert.Error(t, err)
}
