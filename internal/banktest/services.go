package banktest

import "context"

// AtmClient is the external service consulted before handing out cash.
type AtmClient interface {
	RecordWithdrawal(ctx context.Context, atmID string, amount int64) error
}

// Services bundles the external collaborators injected into Handle.
type Services struct {
	Atm AtmClient
}

// StubAtmClient records withdrawals and can be configured to fail.
type StubAtmClient struct {
	Err         error
	Withdrawals []int64
}

func (s *StubAtmClient) RecordWithdrawal(_ context.Context, _ string, amount int64) error {
	if s.Err != nil {
		return s.Err
	}
	s.Withdrawals = append(s.Withdrawals, amount)
	return nil
}
