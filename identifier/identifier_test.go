package identifier_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/console-buyback/core"
	"github.com/warp/console-buyback/core/store"
	"github.com/warp/console-buyback/identifier"
)

var march10 = time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

// =============================================================================
// PRODUCT CODES
// =============================================================================

func TestProductCode(t *testing.T) {
	tests := []struct {
		name         string
		manufacturer core.Manufacturer
		typ          core.ProductType
		model        string
		override     string
		want         string
	}{
		{"switch", core.ManufacturerNintendo, core.ProductHardware, "Switch", "", "N01"},
		{"switch oled with brand", core.ManufacturerNintendo, core.ProductHardware, "Nintendo Switch  OLED", "", "N02"},
		{"switch lite", core.ManufacturerNintendo, core.ProductHardware, "switch lite", "", "N03"},
		{"playstation 5", core.ManufacturerSony, core.ProductHardware, "PlayStation 5", "", "S01"},
		{"ps4 pro", core.ManufacturerSony, core.ProductHardware, "PS4 Pro", "", "S04"},
		{"xbox series s", core.ManufacturerMicrosoft, core.ProductHardware, "Xbox Series S", "", "M02"},
		{"override wins", core.ManufacturerNintendo, core.ProductHardware, "Switch", "07", "N07"},
		{"bad override ignored", core.ManufacturerNintendo, core.ProductHardware, "Switch", "7", "N01"},
		{"unknown model", core.ManufacturerOther, core.ProductHardware, "Dreamcast", "", "O99"},
		{"nintendo software", core.ManufacturerNintendo, core.ProductSoftware, "Zelda", "", "NS"},
		{"sony software", core.ManufacturerSony, core.ProductSoftware, "", "", "SS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := identifier.ProductCode(tt.manufacturer, tt.typ, tt.model, tt.override)
			assert.Equal(t, tt.want, got)
			assert.True(t, identifier.ValidProductCode(got), "generated code must match the product code format")
		})
	}
}

func TestValidProductCode(t *testing.T) {
	assert.True(t, identifier.ValidProductCode("N01"))
	assert.True(t, identifier.ValidProductCode("MS"))
	assert.False(t, identifier.ValidProductCode("X01"))
	assert.False(t, identifier.ValidProductCode("N001"))
	assert.False(t, identifier.ValidProductCode("n01"))
}

// =============================================================================
// COUNTERPARTY CODES
// =============================================================================

func TestCounterpartyCode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"hiragana", "やまだ", "YAMADA"},
		{"katakana truncated", "ヤマダ タロウ", "YAMADA"},
		{"youon", "きょうこ", "KYOUKO"},
		{"sh youon", "しょう", "SHOU"},
		{"sokuon", "はっとり", "HATTOR"},
		{"sokuon before ch", "まっちゃ", "MATCHA"},
		{"long vowel mark", "ルーシー", "RUSHI"},
		{"half-width katakana", "ﾔﾏﾓﾄ", "YAMAMO"},
		{"latin", "John Smith", "JOHNSM"},
		{"full-width latin", "ＳＭＩＴＨ", "SMITH"},
		{"latin with digits", "Shop 24", "SHOP24"},
		{"ideographic", "山田太郎", "I9DN5C"},
		{"ideographic other", "鈴木", "SVOKDK"},
		{"empty", "", "X"},
		{"symbols only", "!!! ???", "X"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, identifier.CounterpartyCode(tt.in))
		})
	}
}

// =============================================================================
// MANAGEMENT NUMBERS
// =============================================================================

func TestManagementNumber_Format(t *testing.T) {
	got, err := identifier.ManagementNumber("やまだ", "N01", march10, 1)
	require.NoError(t, err)
	assert.Equal(t, "YAMADA_N01_20250310_01", got)
	assert.True(t, identifier.ValidManagementNumber(got))
}

func TestManagementNumber_SequenceOutOfRange(t *testing.T) {
	for _, seq := range []int{0, 100, -1} {
		_, err := identifier.ManagementNumber("Yamada", "N01", march10, seq)
		assert.ErrorIs(t, err, core.ErrValidation, "sequence %d", seq)
	}
}

func TestManagementNumber_PairwiseDistinct(t *testing.T) {
	// GIVEN: Same counterparty, product and date
	// WHEN: Generating sequences 1..N
	// THEN: Every number is distinct and well-formed
	seen := make(map[string]bool)
	for seq := 1; seq <= identifier.MaxSequence; seq++ {
		n, err := identifier.ManagementNumber("ヤマダ", "S01", march10, seq)
		require.NoError(t, err)
		assert.True(t, identifier.ValidManagementNumber(n), n)
		assert.False(t, seen[n], "duplicate %s", n)
		seen[n] = true
	}
}

func TestSequencer_ContinuesAcrossBatches(t *testing.T) {
	// GIVEN: Two batches for the same counterparty, product and day
	ctx := context.Background()
	seq := identifier.NewSequencer(store.NewMemory())

	first, err := seq.ManagementNumbers(ctx, "Yamada", "N01", march10, 2)
	require.NoError(t, err)
	second, err := seq.ManagementNumbers(ctx, "yamada", "N01", march10, 1)
	require.NoError(t, err)

	// THEN: The second batch continues the counter instead of restarting at 01
	assert.Equal(t, []string{"YAMADA_N01_20250310_01", "YAMADA_N01_20250310_02"}, first)
	assert.Equal(t, []string{"YAMADA_N01_20250310_03"}, second)

	// A different day starts over
	next, err := seq.ManagementNumbers(ctx, "Yamada", "N01", march10.AddDate(0, 0, 1), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"YAMADA_N01_20250311_01"}, next)
}

func TestSequencer_Exhausted(t *testing.T) {
	ctx := context.Background()
	seq := identifier.NewSequencer(store.NewMemory())

	_, err := seq.ManagementNumbers(ctx, "Yamada", "N01", march10, 98)
	require.NoError(t, err)

	_, err = seq.ManagementNumbers(ctx, "Yamada", "N01", march10, 2)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestSequencer_DocumentNumber(t *testing.T) {
	ctx := context.Background()
	seq := identifier.NewSequencer(store.NewMemory())

	first, err := seq.DocumentNumber(ctx, "B", march10)
	require.NoError(t, err)
	second, err := seq.DocumentNumber(ctx, "B", march10)
	require.NoError(t, err)
	sales, err := seq.DocumentNumber(ctx, "S", march10)
	require.NoError(t, err)

	assert.Equal(t, "B20250310-0001", first)
	assert.Equal(t, "B20250310-0002", second)
	assert.Equal(t, "S20250310-0001", sales)
}
