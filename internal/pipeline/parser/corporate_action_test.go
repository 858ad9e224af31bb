package parser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/parser"
)

func TestParseCorporateActions_HappyPath(t *testing.T) {
	xbrl := `<CorporateActionDisclosure>
		<Action>
			<Symbol>INFY</Symbol>
			<ISIN>INE009A01021</ISIN>
			<PurposeOfTheMeeting>BONUS</PurposeOfTheMeeting>
			<FaceValue>1:1</FaceValue>
			<ExDate>15-03-2024</ExDate>
			<AdjustmentFactor>0.5</AdjustmentFactor>
		</Action>
	</CorporateActionDisclosure>`

	result, err := parser.ParseCorporateActions([]byte(xbrl), "v1", 1700000000000)
	require.NoError(t, err)
	defer result.Frame.Release()

	assert.Equal(t, 1, result.Frame.NumRows())

	symbol, ok := result.Frame.StringAt("symbol", 0)
	assert.True(t, ok)
	assert.Equal(t, "INFY", symbol)

	factor, ok := result.Frame.Float64At("adjustment_factor", 0)
	assert.True(t, ok)
	assert.Equal(t, 0.5, factor)
}

func TestParseCorporateActions_DefaultsAdjustmentFactorToOne(t *testing.T) {
	xbrl := `<CorporateActionDisclosure>
		<Action>
			<Symbol>TCS</Symbol>
			<PurposeOfTheMeeting>DIVIDEND</PurposeOfTheMeeting>
			<ExDate>01-04-2024</ExDate>
		</Action>
	</CorporateActionDisclosure>`

	result, err := parser.ParseCorporateActions([]byte(xbrl), "v1", 0)
	require.NoError(t, err)
	defer result.Frame.Release()

	factor, ok := result.Frame.Float64At("adjustment_factor", 0)
	assert.True(t, ok)
	assert.Equal(t, 1.0, factor)
}
