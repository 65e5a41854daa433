package identifier

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/console-buyback/core"
)

// Sequencer issues management numbers whose sequences come from a persisted
// counter scoped per counterparty code, product code and day. Two batches for
// the same scope never reuse a sequence, even across processes sharing the
// store.
type Sequencer struct {
	store core.SequenceStore
}

func NewSequencer(store core.SequenceStore) *Sequencer {
	return &Sequencer{store: store}
}

// Scope returns the counter key for a counterparty code, product and day.
func Scope(cpCode, productCode string, date time.Time) string {
	return fmt.Sprintf("mgmt:%s_%s_%s", cpCode, productCode, date.Format("20060102"))
}

// ManagementNumbers reserves n consecutive sequences and formats them. It
// fails with a ValidationError once the day's 99 sequences are used up.
func (s *Sequencer) ManagementNumbers(ctx context.Context, counterpartyName, productCode string, date time.Time, n int) ([]string, error) {
	if n < 1 {
		return nil, nil
	}
	if !ValidProductCode(productCode) {
		return nil, core.NewValidationError("productCode", "invalid product code %q", productCode)
	}

	cpCode := CounterpartyCode(counterpartyName)
	first, err := s.store.NextSequence(ctx, Scope(cpCode, productCode, date), n)
	if err != nil {
		return nil, fmt.Errorf("reserve management sequence: %w", err)
	}
	if last := first + int64(n) - 1; last > MaxSequence {
		return nil, core.NewValidationError("sequence",
			"daily sequence exhausted for %s %s on %s (would reach %d)",
			cpCode, productCode, date.Format("2006-01-02"), last)
	}

	out := make([]string, n)
	for i := range out {
		out[i] = formatManagementNumber(cpCode, productCode, date, int(first)+i)
	}
	return out, nil
}

// DocumentNumber issues the next application or request number for a day,
// e.g. B20250310-0001.
func (s *Sequencer) DocumentNumber(ctx context.Context, prefix string, date time.Time) (string, error) {
	day := date.Format("20060102")
	seq, err := s.store.NextSequence(ctx, "doc:"+prefix+day, 1)
	if err != nil {
		return "", fmt.Errorf("reserve document number: %w", err)
	}
	return fmt.Sprintf("%s%s-%04d", prefix, day, seq), nil
}
